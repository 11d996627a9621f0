package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/boltdb/bolt"

	"github.com/icexin/pixelcraft/tile"
)

var (
	historyBucket = []byte("history")
	playerBucket  = []byte("player")
)

var ErrBadRecord = errors.New("store: bad record")

// Store keeps the pixel change history and the last player position of each
// canvas. History keys are big-endian nanosecond timestamps, so a cursor walks
// them in time order.
type Store struct {
	db *bolt.DB
}

func NewStore(p string) (*Store, error) {
	db, err := bolt.Open(p, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(playerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	db.NoSync = true
	return &Store{
		db: db,
	}, nil
}

// AppendChanges records observed changes in order. A change whose timestamp
// is not after the newest record is stored one nanosecond after it, so keys
// stay strictly increasing.
func (s *Store) AppendChanges(canvas string, changes ...tile.PixelChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.Bucket(historyBucket).CreateBucketIfNotExists([]byte(canvas))
		if err != nil {
			return err
		}
		var last int64
		if k, _ := bkt.Cursor().Last(); k != nil {
			last = int64(binary.BigEndian.Uint64(k))
		}
		for _, pc := range changes {
			ts := pc.Timestamp.UnixNano()
			if ts <= last {
				ts = last + 1
			}
			last = ts
			if err := bkt.Put(encodeTimeKey(ts), encodeChange(pc)); err != nil {
				return err
			}
		}
		return nil
	})
}

// RangeChanges calls f for every change recorded in [from, to), oldest first.
func (s *Store) RangeChanges(canvas string, from, to time.Time, f func(tile.PixelChange) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(historyBucket).Bucket([]byte(canvas))
		if bkt == nil {
			return nil
		}
		end := encodeTimeKey(to.UnixNano())
		iter := bkt.Cursor()
		for k, v := iter.Seek(encodeTimeKey(from.UnixNano())); k != nil && bytes.Compare(k, end) < 0; k, v = iter.Next() {
			pc, err := decodeChange(k, v)
			if err != nil {
				return err
			}
			if err := f(pc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpdatePlayer(canvas string, pos image.Point) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(playerBucket)
		buf := new(bytes.Buffer)
		binary.Write(buf, binary.LittleEndian, [...]int32{int32(pos.X), int32(pos.Y)})
		return bkt.Put([]byte(canvas), buf.Bytes())
	})
}

// GetPlayer returns the last saved position, or false if there is none.
func (s *Store) GetPlayer(canvas string) (pos image.Point, ok bool) {
	s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(playerBucket).Get([]byte(canvas))
		if len(value) != 8 {
			return nil
		}
		var arr [2]int32
		binary.Read(bytes.NewReader(value), binary.LittleEndian, &arr)
		pos, ok = image.Pt(int(arr[0]), int(arr[1])), true
		return nil
	})
	return
}

func (s *Store) Close() error {
	s.db.Sync()
	return s.db.Close()
}

func encodeTimeKey(ns int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(ns))
	return key
}

func encodeChange(pc tile.PixelChange) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, [...]int32{int32(pc.X), int32(pc.Y)})
	binary.Write(buf, binary.LittleEndian, [...]uint32{uint32(pc.Color), pc.ID})
	return buf.Bytes()
}

func decodeChange(k, v []byte) (tile.PixelChange, error) {
	if len(k) != 8 || len(v) != 16 {
		return tile.PixelChange{}, fmt.Errorf("%w: key %d bytes, value %d bytes", ErrBadRecord, len(k), len(v))
	}
	var pos [2]int32
	var attr [2]uint32
	buf := bytes.NewReader(v)
	binary.Read(buf, binary.LittleEndian, &pos)
	binary.Read(buf, binary.LittleEndian, &attr)
	return tile.PixelChange{
		X:         int(pos[0]),
		Y:         int(pos[1]),
		Color:     tile.Color(attr[0]),
		ID:        attr[1],
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(k))),
	}, nil
}
