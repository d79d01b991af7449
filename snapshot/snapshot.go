// Package snapshot saves and restores the translation tables together with
// the guest memory behind them in a bbolt file.
//
// Layout:
//
//	meta    version, handler count, host bytes in use
//	tables  pmap, vmap as little-endian int32 arrays
//	host    1 MiB chunks keyed by big-endian chunk index; all-zero chunks
//	        are left out
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"ee/hostmem"
	"ee/vtlb"
)

const (
	Version   = 1
	ChunkSize = 1 << 20
)

var (
	bucketMeta   = []byte("meta")
	bucketTables = []byte("tables")
	bucketHost   = []byte("host")

	keyVersion  = []byte("version")
	keyHandlers = []byte("handlers")
	keyHostUsed = []byte("host_used")
	keyPmap     = []byte("pmap")
	keyVmap     = []byte("vmap")
)

var ErrFormat = errors.New("snapshot: bad format")

// Info describes a saved snapshot.
type Info struct {
	Version  uint64
	Handlers int
	HostUsed uint32
	Chunks   int
}

// Save writes the tables and the used part of the host arena to path,
// replacing any snapshot already there.
func Save(path string, v *vtlb.VTLB) error {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer db.Close()

	pmap, vmap := v.PageTables()
	host := v.Host()
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketTables, bucketHost} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}

		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		if err := putUint(meta, keyVersion, Version); err != nil {
			return err
		}
		if err := putUint(meta, keyHandlers, uint64(v.HandlerCount())); err != nil {
			return err
		}
		if err := putUint(meta, keyHostUsed, uint64(host.Used())); err != nil {
			return err
		}

		tables, err := tx.CreateBucket(bucketTables)
		if err != nil {
			return err
		}
		if err := tables.Put(keyPmap, encodeTable(pmap)); err != nil {
			return err
		}
		if err := tables.Put(keyVmap, encodeTable(vmap)); err != nil {
			return err
		}

		chunks, err := tx.CreateBucket(bucketHost)
		if err != nil {
			return err
		}
		key := make([]byte, 4)
		for off := uint32(0); off < host.Used(); off += ChunkSize {
			chunk := host.Slice(off, min(ChunkSize, host.Used()-off))
			if zero(chunk) {
				continue
			}
			binary.BigEndian.PutUint32(key, off/ChunkSize)
			if err := chunks.Put(key, chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load restores a snapshot into v. The caller must have initialized v and
// registered the same handler sets, in the same order, as at save time;
// the host arena must be at least as large as the saved one.
func Load(path string, v *vtlb.VTLB) error {
	db, err := bolt.Open(path, 0644, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		info, err := readInfo(tx)
		if err != nil {
			return err
		}
		tables := tx.Bucket(bucketTables)
		pmap, err := decodeTable(tables.Get(keyPmap))
		if err != nil {
			return fmt.Errorf("pmap: %w", err)
		}
		vmap, err := decodeTable(tables.Get(keyVmap))
		if err != nil {
			return fmt.Errorf("vmap: %w", err)
		}

		host := v.Host()
		if int(info.HostUsed) > host.Size() {
			return fmt.Errorf("snapshot: %d host bytes saved, arena holds %d", info.HostUsed, host.Size())
		}
		chunks := tx.Bucket(bucketHost)
		if err := chunks.ForEach(func(k, val []byte) error {
			_, err := chunkOffset(k, val, info.HostUsed)
			return err
		}); err != nil {
			return err
		}

		// the file is fully checked; RestoreTables checks before it writes
		if err := v.RestoreTables(pmap, vmap, info.Handlers); err != nil {
			return err
		}
		if err := host.SetUsed(info.HostUsed); err != nil {
			return err
		}
		clear(host.Slice(0, info.HostUsed))
		return chunks.ForEach(func(k, val []byte) error {
			off, _ := chunkOffset(k, val, info.HostUsed)
			copy(host.Slice(off, uint32(len(val))), val)
			return nil
		})
	})
}

// chunkOffset validates one host chunk and returns where it goes.
func chunkOffset(k, val []byte, used uint32) (uint32, error) {
	if len(k) != 4 {
		return 0, fmt.Errorf("host chunk key %x: %w", k, ErrFormat)
	}
	off := uint64(binary.BigEndian.Uint32(k)) * ChunkSize
	if off+uint64(len(val)) > uint64(used) {
		return 0, fmt.Errorf("host chunk at %#x past the used arena: %w", off, ErrFormat)
	}
	return uint32(off), nil
}

// Inspect reads the metadata of the snapshot at path.
func Inspect(path string) (Info, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return Info{}, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer db.Close()

	var info Info
	err = db.View(func(tx *bolt.Tx) error {
		var err error
		info, err = readInfo(tx)
		return err
	})
	return info, err
}

func readInfo(tx *bolt.Tx) (Info, error) {
	meta := tx.Bucket(bucketMeta)
	if meta == nil || tx.Bucket(bucketTables) == nil || tx.Bucket(bucketHost) == nil {
		return Info{}, fmt.Errorf("missing buckets: %w", ErrFormat)
	}
	var info Info
	var handlers, used uint64
	for _, f := range []struct {
		key []byte
		dst *uint64
	}{
		{keyVersion, &info.Version},
		{keyHandlers, &handlers},
		{keyHostUsed, &used},
	} {
		val := meta.Get(f.key)
		if len(val) != 8 {
			return Info{}, fmt.Errorf("meta %s: %w", f.key, ErrFormat)
		}
		*f.dst = binary.BigEndian.Uint64(val)
	}
	if info.Version != Version {
		return Info{}, fmt.Errorf("version %d, want %d: %w", info.Version, Version, ErrFormat)
	}
	if used > hostmem.MaxSize || used < hostmem.GuardSize || used%hostmem.PageSize != 0 {
		return Info{}, fmt.Errorf("host size %#x: %w", used, ErrFormat)
	}
	info.Handlers = int(handlers)
	info.HostUsed = uint32(used)
	info.Chunks = tx.Bucket(bucketHost).Stats().KeyN
	return info, nil
}

func putUint(b *bolt.Bucket, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return b.Put(key, buf)
}

func encodeTable(t []int32) []byte {
	buf := make([]byte, 0, len(t)*4)
	for _, e := range t {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e))
	}
	return buf
}

func decodeTable(b []byte) ([]int32, error) {
	if b == nil || len(b)%4 != 0 {
		return nil, ErrFormat
	}
	t := make([]int32, len(b)/4)
	for i := range t {
		t[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return t, nil
}

func zero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
