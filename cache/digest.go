package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/chazu/mbasic/compiler"
	"github.com/chazu/mbasic/program"
)

// digestVersion is the first byte of every digest input. Bump it when the
// linked output for unchanged input can differ.
const digestVersion byte = 0x01

// Key returns the cache key of p compiled with flags under the rule table
// identified by rules (a path, or "" for the built-in table).
//
// The key is the hex SHA-256 of a deterministic serialization:
//   - first byte: digestVersion
//   - booleans: single byte (0/1)
//   - integers: big-endian 8B
//   - strings: uint32 big-endian length + UTF-8 bytes
func Key(p *program.Program, flags compiler.Flags, rules string) string {
	d := &digester{buf: make([]byte, 0, 256)}
	d.writeByte(digestVersion)
	d.writeBool(flags.Optimize)
	d.writeBool(flags.PoolConstants)
	d.writeBool(flags.LoopTopTest)
	d.writeBool(flags.StripStatements)
	d.writeBool(flags.DeadCode)
	d.writeString(flags.Separator)
	d.writeString(rules)

	d.writeInt64(int64(len(p.Statements)))
	for _, st := range p.Statements {
		d.writeInt64(int64(st.Line))
		d.writeString(st.Label)
		d.writeString(st.Source)
	}
	sum := sha256.Sum256(d.buf)
	return hex.EncodeToString(sum[:])
}

type digester struct {
	buf []byte
}

func (d *digester) writeByte(b byte) {
	d.buf = append(d.buf, b)
}

func (d *digester) writeBool(v bool) {
	if v {
		d.writeByte(1)
	} else {
		d.writeByte(0)
	}
}

func (d *digester) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	d.buf = append(d.buf, b[:]...)
}

func (d *digester) writeString(v string) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(v)))
	d.buf = append(d.buf, b[:]...)
	d.buf = append(d.buf, v...)
}
