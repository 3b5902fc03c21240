// Package command implements the Command Protocol (C4): the ASCII
// request/response grammar carried as UI-frame payloads (§4.4).
package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies which command or response a parsed line represents.
type Kind int

const (
	Unknown Kind = iota
	KindList
	KindMeta
	KindGet
	KindGetMeta
	KindMetaReply
	KindListSentinel
)

var (
	listRe    = regexp.MustCompile(`^L (\d+)$`)
	metaRe    = regexp.MustCompile(`^M ([0-9a-f]{64})$`)
	getRe     = regexp.MustCompile(`^G (\d+) 0 (\d+) ([0-9a-f]{64})$`)
	getMetaRe = regexp.MustCompile(`^GM (\d+) (\d+) (\d+) ([0-9a-f]{64})$`)

	metaReplyRe = regexp.MustCompile(`^m ([0-9a-f]{64}) (\d+) (\d+)$`)
	listLineRe  = regexp.MustCompile(`^l (\d+)$`)
)

// ListRequest is `L <tag>`.
type ListRequest struct{ Tag uint16 }

// MetaRequest is `M <hash>`.
type MetaRequest struct{ Hash string }

// GetRequest is `G <tag> 0 <existing> <hash>`. The slot between tag and
// existing is a reserved literal that the grammar requires to be 0; it is
// not stored. GET-META carries its own value of that slot, unused, in
// GetMetaRequest.Freq.
type GetRequest struct {
	Tag      uint16
	Existing int
	Hash     string
}

// GetMetaRequest is `GM <tag> <freq> <existing> <hash>`, handled as META
// followed by GET against the same tag/hash (§4.4, SUPPLEMENTED FEATURES).
type GetMetaRequest struct {
	Tag      uint16
	Freq     int
	Existing int
	Hash     string
}

// MetaReply is `m <hash> <K> <size>`.
type MetaReply struct {
	Hash string
	K    int
	Size int64
}

// String renders the wire form of a MetaReply.
func (r MetaReply) String() string {
	return fmt.Sprintf("m %s %d %d", r.Hash, r.K, r.Size)
}

// ListSentinel renders the `l <tag>` framing line, used both as the leading
// sentinel of a populated listing and as the lone empty-list reply.
func ListSentinel(tag uint16) string { return fmt.Sprintf("l %d", tag) }

// ListEntryLine renders one `<hash> <name>` listing row.
func ListEntryLine(hash, name string) string { return fmt.Sprintf("%s %s", hash, name) }

// ParseRequest classifies and parses a client-to-server line. Non-matching
// input yields Unknown with a nil value, never an error: the parsing policy
// (§4.4) is silent drop, not rejection.
func ParseRequest(line string) (Kind, interface{}) {
	if m := listRe.FindStringSubmatch(line); m != nil {
		tag, err := strconv.ParseUint(m[1], 10, 16)
		if err != nil {
			return Unknown, nil
		}
		return KindList, ListRequest{Tag: uint16(tag)}
	}
	if m := metaRe.FindStringSubmatch(line); m != nil {
		return KindMeta, MetaRequest{Hash: m[1]}
	}
	if m := getRe.FindStringSubmatch(line); m != nil {
		tag, err := strconv.ParseUint(m[1], 10, 16)
		if err != nil {
			return Unknown, nil
		}
		existing, err := strconv.Atoi(m[2])
		if err != nil {
			return Unknown, nil
		}
		return KindGet, GetRequest{Tag: uint16(tag), Existing: existing, Hash: m[3]}
	}
	if m := getMetaRe.FindStringSubmatch(line); m != nil {
		tag, err := strconv.ParseUint(m[1], 10, 16)
		if err != nil {
			return Unknown, nil
		}
		freq, err := strconv.Atoi(m[2])
		if err != nil {
			return Unknown, nil
		}
		existing, err := strconv.Atoi(m[3])
		if err != nil {
			return Unknown, nil
		}
		return KindGetMeta, GetMetaRequest{Tag: uint16(tag), Freq: freq, Existing: existing, Hash: m[4]}
	}
	return Unknown, nil
}

// FormatGet renders the wire form of a GET request.
func FormatGet(tag uint16, existing int, hash string) string {
	return fmt.Sprintf("G %d 0 %d %s", tag, existing, hash)
}

// FormatList renders the wire form of a LIST request.
func FormatList(tag uint16) string { return fmt.Sprintf("L %d", tag) }

// FormatMeta renders the wire form of a META request.
func FormatMeta(hash string) string { return fmt.Sprintf("M %s", hash) }

// FormatGetMeta renders the wire form of a GET-META request.
func FormatGetMeta(tag uint16, freq, existing int, hash string) string {
	return fmt.Sprintf("GM %d %d %d %s", tag, freq, existing, hash)
}

// ParseMetaReply matches a `m <hash> <K> <size>` line against the requested
// hash. ok is false on any mismatch (wrong hash, wrong grammar).
func ParseMetaReply(line, wantHash string) (reply MetaReply, ok bool) {
	m := metaReplyRe.FindStringSubmatch(line)
	if m == nil || m[1] != wantHash {
		return MetaReply{}, false
	}
	k, err := strconv.Atoi(m[2])
	if err != nil {
		return MetaReply{}, false
	}
	size, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return MetaReply{}, false
	}
	return MetaReply{Hash: m[1], K: k, Size: size}, true
}

// ParseListPayload interprets one inbound frame's text payload as either the
// empty-list sentinel or a populated listing for the given tag (§4.4,
// §4.5). ok is false if the payload doesn't match the tag at all.
func ParseListPayload(payload string, wantTag uint16) (entries []ListEntry, sentinelOnly bool, ok bool) {
	lines := strings.Split(payload, "\n")
	if len(lines) == 0 {
		return nil, false, false
	}
	sentinel := ListSentinel(wantTag)
	if lines[0] == sentinel {
		if len(lines) == 1 {
			return nil, true, true
		}
		// Populated listing: leading sentinel, entry lines, trailing sentinel.
		var out []ListEntry
		for _, l := range lines[1:] {
			if l == sentinel || l == "" {
				continue
			}
			parts := strings.SplitN(l, " ", 2)
			if len(parts) != 2 {
				continue
			}
			out = append(out, ListEntry{Hash: parts[0], Name: parts[1]})
		}
		return out, false, true
	}
	if m := listLineRe.FindStringSubmatch(lines[0]); m != nil {
		tag, err := strconv.ParseUint(m[1], 10, 16)
		if err == nil && uint16(tag) == wantTag && len(lines) == 1 {
			return nil, true, true
		}
	}
	return nil, false, false
}

// ListEntry is one (hash, name) row of a LIST reply.
type ListEntry struct {
	Hash string
	Name string
}
