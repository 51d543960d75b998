package builtin

import (
	"archive/zip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"mercator-hq/triage/pkg/budget"
	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/probe"
)

var defaultExecutableExtensions = []string{"exe", "dll", "scr", "com", "bat", "cmd", "ps1", "vbs", "js", "msi", "jar"}

const (
	localHeaderSignature = 0x04034b50
	localHeaderLen       = 30
	dataDescriptorFlag   = 0x8
)

// ArchiveProbe walks the member list of a zip container without
// decompressing anything.
//
// Facts: members (number of members visited), has_executable, nested
// (members whose extension is listed in nested_extensions) and encrypted.
//
// When the central directory cannot be read the probe falls back to
// walking local file headers from the start of the artifact and reports a
// partial result.
type ArchiveProbe struct{}

type archiveMember struct {
	name      string
	encrypted bool
}

// Run implements probe.Probe.
func (p *ArchiveProbe) Run(ctx context.Context, req *probe.Request) (*probe.Result, error) {
	nested, err := stringList(req.Config, "nested_extensions")
	if err != nil {
		return nil, err
	}
	executables, err := stringList(req.Config, "executable_extensions")
	if err != nil {
		return nil, err
	}
	if executables == nil {
		executables = defaultExecutableExtensions
	}

	result := &probe.Result{
		State:    probe.StateOK,
		Consumed: budget.Usage{Depth: 1},
	}

	members, truncated, err := p.centralDirectory(req)
	if err != nil {
		if errors.Is(err, budget.ErrBoundExceeded) {
			result.Exhausted = append(result.Exhausted, budget.BytesRead)
		}
		result.State = probe.StatePartial
		result.Detail = fmt.Sprintf("central directory unreadable: %v", err)

		var walkErr error
		members, truncated, walkErr = p.localHeaders(ctx, req)
		if errors.Is(walkErr, budget.ErrBoundExceeded) && len(result.Exhausted) == 0 {
			result.Exhausted = append(result.Exhausted, budget.BytesRead)
		}
		if len(members) == 0 {
			return nil, fmt.Errorf("not a readable zip archive: %w", err)
		}
	}
	if truncated {
		result.State = probe.StatePartial
		result.Exhausted = append(result.Exhausted, budget.Members)
	}

	var hasExecutable, encrypted bool
	var nestedCount int
	for _, m := range members {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(m.name)), ".")
		hasExecutable = hasExecutable || contains(executables, ext)
		if contains(nested, ext) {
			nestedCount++
		}
		encrypted = encrypted || m.encrypted
	}

	result.Consumed.Members = int64(len(members))
	result.Facts = map[string]facts.Value{
		"members":        facts.Number(float64(len(members))),
		"has_executable": facts.Bool(hasExecutable),
		"nested":         facts.Number(float64(nestedCount)),
		"encrypted":      facts.Bool(encrypted),
	}
	return result, nil
}

// centralDirectory lists members from the central directory, visiting at
// most the member allowance.
func (p *ArchiveProbe) centralDirectory(req *probe.Request) ([]archiveMember, bool, error) {
	zr, err := zip.NewReader(req.Artifact, req.Size)
	if err != nil {
		return nil, false, err
	}

	limit := req.Allowance.Members
	members := make([]archiveMember, 0, min(int64(len(zr.File)), limit))
	for _, f := range zr.File {
		if int64(len(members)) >= limit {
			return members, true, nil
		}
		members = append(members, archiveMember{
			name:      f.Name,
			encrypted: f.Flags&0x1 != 0,
		})
	}
	return members, false, nil
}

// localHeaders walks local file headers sequentially until the structure
// ends, breaks or the member allowance is reached.
func (p *ArchiveProbe) localHeaders(ctx context.Context, req *probe.Request) ([]archiveMember, bool, error) {
	var (
		members []archiveMember
		off     int64
		header  [localHeaderLen]byte
	)

	for off+localHeaderLen <= req.Size {
		if err := ctx.Err(); err != nil {
			return members, false, err
		}
		if int64(len(members)) >= req.Allowance.Members {
			return members, true, nil
		}

		if _, err := req.Artifact.ReadAt(header[:], off); err != nil {
			return members, false, err
		}
		if binary.LittleEndian.Uint32(header[0:4]) != localHeaderSignature {
			return members, false, nil
		}

		flags := binary.LittleEndian.Uint16(header[6:8])
		compressed := int64(binary.LittleEndian.Uint32(header[18:22]))
		nameLen := int64(binary.LittleEndian.Uint16(header[26:28]))
		extraLen := int64(binary.LittleEndian.Uint16(header[28:30]))

		if off+localHeaderLen+nameLen > req.Size {
			return members, false, io.ErrUnexpectedEOF
		}
		name := make([]byte, nameLen)
		if _, err := req.Artifact.ReadAt(name, off+localHeaderLen); err != nil {
			return members, false, err
		}
		members = append(members, archiveMember{name: string(name), encrypted: flags&0x1 != 0})

		// Sizes follow the data when a descriptor is used, so the next
		// header cannot be located.
		if flags&dataDescriptorFlag != 0 {
			return members, false, nil
		}
		off += localHeaderLen + nameLen + extraLen + compressed
	}
	return members, false, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
