package native

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/fs"
)

// Stat is the decoded form of the native stat wire format. Timestamps are
// milliseconds since the epoch, as the native client reports them. Mode uses
// the io/fs.FileMode bit layout, which is what the native client encodes.
type Stat struct {
	Mode    fs.FileMode
	Size    int64
	MtimeMS int64
	AtimeMS int64
	Owner   string
	Group   string
}

// DirEnt is one entry of a directory page.
type DirEnt struct {
	Name string
	Stat Stat
}

// VFSStat is the decoded statvfs wire format, in blocks.
type VFSStat struct {
	Blocks int64
	Avail  int64
}

// DirSummary is the decoded directory summary wire format.
type DirSummary struct {
	Size  int64
	Files int64
	Dirs  int64
}

const statHeaderLen = 28

// DecodeStat parses the stat buffer the native client fills: little-endian
// uint32 mode, uint64 size, uint64 mtime(ms), uint64 atime(ms), followed by
// the NUL-terminated owner and group names. n is the byte count the native
// call returned.
func DecodeStat(buf []byte, n int) (Stat, error) {
	if n < statHeaderLen || n > len(buf) {
		return Stat{}, fmt.Errorf("native: stat buffer length %d out of range", n)
	}
	b := buf[:n]
	st := Stat{
		Mode:    fs.FileMode(binary.LittleEndian.Uint32(b[0:4])),
		Size:    int64(binary.LittleEndian.Uint64(b[4:12])),
		MtimeMS: int64(binary.LittleEndian.Uint64(b[12:20])),
		AtimeMS: int64(binary.LittleEndian.Uint64(b[20:28])),
	}
	rest := b[statHeaderLen:]
	owner, rest, err := readCString(rest)
	if err != nil {
		return Stat{}, fmt.Errorf("native: stat owner: %w", err)
	}
	group, rest, err := readCString(rest)
	if err != nil {
		return Stat{}, fmt.Errorf("native: stat group: %w", err)
	}
	if len(rest) != 0 {
		return Stat{}, fmt.Errorf("native: %d trailing bytes in stat buffer", len(rest))
	}
	st.Owner = owner
	st.Group = group
	return st, nil
}

// EncodeStat produces the wire form of st. The test fake uses it so that the
// SDK decodes the same bytes the production client would emit.
func EncodeStat(st Stat) []byte {
	b := make([]byte, statHeaderLen, statHeaderLen+len(st.Owner)+len(st.Group)+2)
	binary.LittleEndian.PutUint32(b[0:4], uint32(st.Mode))
	binary.LittleEndian.PutUint64(b[4:12], uint64(st.Size))
	binary.LittleEndian.PutUint64(b[12:20], uint64(st.MtimeMS))
	binary.LittleEndian.PutUint64(b[20:28], uint64(st.AtimeMS))
	b = append(b, st.Owner...)
	b = append(b, 0)
	b = append(b, st.Group...)
	b = append(b, 0)
	return b
}

// DecodeDirPage parses one readdir page. The first n bytes of buf hold the
// entries, each encoded as {u8 name length, name, u8 stat length, stat};
// eight trailer bytes follow with the count of entries remaining on the
// server and the continuation token for the next page.
func DecodeDirPage(buf []byte, n int) (ents []DirEnt, remaining int, cont int, err error) {
	if n < 0 || n+8 > len(buf) {
		return nil, 0, 0, fmt.Errorf("native: dir page length %d out of range", n)
	}
	b := buf[:n]
	for len(b) > 0 {
		nameLen := int(b[0])
		b = b[1:]
		if len(b) < nameLen+1 {
			return nil, 0, 0, fmt.Errorf("native: truncated dir entry name")
		}
		name := string(b[:nameLen])
		b = b[nameLen:]
		statLen := int(b[0])
		b = b[1:]
		if len(b) < statLen {
			return nil, 0, 0, fmt.Errorf("native: truncated dir entry stat")
		}
		st, err := DecodeStat(b[:statLen], statLen)
		if err != nil {
			return nil, 0, 0, err
		}
		b = b[statLen:]
		ents = append(ents, DirEnt{Name: name, Stat: st})
	}
	trailer := buf[n : n+8]
	remaining = int(binary.LittleEndian.Uint32(trailer[0:4]))
	cont = int(binary.LittleEndian.Uint32(trailer[4:8]))
	return ents, remaining, cont, nil
}

// EncodeDirPage builds a readdir page from ents plus the trailer fields.
// It returns the buffer and the entry byte count (the native return value).
func EncodeDirPage(ents []DirEnt, remaining, cont int) ([]byte, int) {
	var b []byte
	for _, ent := range ents {
		st := EncodeStat(ent.Stat)
		b = append(b, byte(len(ent.Name)))
		b = append(b, ent.Name...)
		b = append(b, byte(len(st)))
		b = append(b, st...)
	}
	n := len(b)
	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[0:4], uint32(remaining))
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(cont))
	return append(b, trailer[:]...), n
}

// DecodeVFSStat parses the 16-byte statvfs buffer: total blocks and
// available blocks, little-endian uint64 each.
func DecodeVFSStat(buf []byte) (VFSStat, error) {
	if len(buf) < 16 {
		return VFSStat{}, fmt.Errorf("native: statvfs buffer too short: %d", len(buf))
	}
	return VFSStat{
		Blocks: int64(binary.LittleEndian.Uint64(buf[0:8])),
		Avail:  int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

// EncodeVFSStat produces the wire form of v.
func EncodeVFSStat(v VFSStat) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], uint64(v.Blocks))
	binary.LittleEndian.PutUint64(b[8:16], uint64(v.Avail))
	return b
}

// DecodeSummary parses the 24-byte directory summary buffer.
func DecodeSummary(buf []byte) (DirSummary, error) {
	if len(buf) < 24 {
		return DirSummary{}, fmt.Errorf("native: summary buffer too short: %d", len(buf))
	}
	return DirSummary{
		Size:  int64(binary.LittleEndian.Uint64(buf[0:8])),
		Files: int64(binary.LittleEndian.Uint64(buf[8:16])),
		Dirs:  int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}

// EncodeSummary produces the wire form of s.
func EncodeSummary(s DirSummary) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], uint64(s.Size))
	binary.LittleEndian.PutUint64(b[8:16], uint64(s.Files))
	binary.LittleEndian.PutUint64(b[16:24], uint64(s.Dirs))
	return b
}

// DecodeCString returns the bytes of buf up to the first NUL, or all of buf
// when no NUL is present (the readlink convention).
func DecodeCString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// DecodeXattrList splits the first n bytes of buf into NUL-terminated names.
func DecodeXattrList(buf []byte, n int) []string {
	if n > len(buf) {
		n = len(buf)
	}
	var names []string
	for _, part := range bytes.Split(buf[:n], []byte{0}) {
		if len(part) > 0 {
			names = append(names, string(part))
		}
	}
	return names
}

func readCString(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, fmt.Errorf("missing NUL terminator")
	}
	return string(b[:i]), b[i+1:], nil
}
