package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for all persisted record types. Field order is
// part of the storage format; append new fields at the end only.

// IDMUS serializes ID values.
var IDMUS = idMUS{}

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// timeMUS serializes timestamps as UnixMicro.
type timeMUS struct{}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func (timeMUS) Size(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

// stringsMUS serializes a slice of strings with a leading length.
type stringsMUS struct{}

func (stringsMUS) Marshal(v []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return
}

func (stringsMUS) Unmarshal(bs []byte) (v []string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length == 0 {
		return
	}
	v = make([]string, length)
	for i := 0; i < length; i++ {
		var n1 int
		v[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (stringsMUS) Size(v []string) (size int) {
	size = varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return
}

// vectorMUS serializes an embedding vector with a leading length.
type vectorMUS struct{}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return
}

func (vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length == 0 {
		return
	}
	v = make([]float32, length)
	for i := 0; i < length; i++ {
		var n1 int
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (vectorMUS) Size(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return
}

var (
	timeSer    = timeMUS{}
	stringsSer = stringsMUS{}
	vectorSer  = vectorMUS{}
)

// DocumentMUS serializes Document values.
var DocumentMUS = documentMUS{}

type documentMUS struct{}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = IDMUS.Marshal(d.Id, bs)
	n += ord.String.Marshal(d.ContentHash, bs[n:])
	n += ord.String.Marshal(d.Title, bs[n:])
	n += ord.String.Marshal(d.Department, bs[n:])
	n += varint.Int.Marshal(int(d.Visibility), bs[n:])
	n += stringsSer.Marshal(d.AllowedDepartments, bs[n:])
	n += ord.String.Marshal(d.RawText, bs[n:])
	n += ord.String.Marshal(d.Language, bs[n:])
	n += varint.Int.Marshal(int(d.Status), bs[n:])
	n += timeSer.Marshal(d.InsertedAt, bs[n:])
	n += timeSer.Marshal(d.UpdatedAt, bs[n:])
	return
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	var n1 int
	if d.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if d.ContentHash, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Department, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	var vis int
	if vis, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	d.Visibility = Visibility(vis)
	n += n1
	if d.AllowedDepartments, n1, err = stringsSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.RawText, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Language, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	var status int
	if status, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	d.Status = DocumentStatus(status)
	n += n1
	if d.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	return
}

func (documentMUS) Size(d Document) (size int) {
	size = IDMUS.Size(d.Id)
	size += ord.String.Size(d.ContentHash)
	size += ord.String.Size(d.Title)
	size += ord.String.Size(d.Department)
	size += varint.Int.Size(int(d.Visibility))
	size += stringsSer.Size(d.AllowedDepartments)
	size += ord.String.Size(d.RawText)
	size += ord.String.Size(d.Language)
	size += varint.Int.Size(int(d.Status))
	size += timeSer.Size(d.InsertedAt)
	size += timeSer.Size(d.UpdatedAt)
	return
}

// ChunkMUS serializes Chunk values.
var ChunkMUS = chunkMUS{}

type chunkMUS struct{}

func (chunkMUS) Marshal(c Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(c.Id, bs)
	n += IDMUS.Marshal(c.DocumentId, bs[n:])
	n += varint.Int.Marshal(c.Index, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += varint.Int.Marshal(c.WordCount, bs[n:])
	n += varint.Uint64.Marshal(c.Seq, bs[n:])
	n += timeSer.Marshal(c.InsertedAt, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	var n1 int
	if c.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if c.DocumentId, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Index, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.WordCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Seq, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	return
}

func (chunkMUS) Size(c Chunk) (size int) {
	size = IDMUS.Size(c.Id)
	size += IDMUS.Size(c.DocumentId)
	size += varint.Int.Size(c.Index)
	size += ord.String.Size(c.Text)
	size += varint.Int.Size(c.WordCount)
	size += varint.Uint64.Size(c.Seq)
	size += timeSer.Size(c.InsertedAt)
	return
}

// EmbeddingMUS serializes Embedding values.
var EmbeddingMUS = embeddingMUS{}

type embeddingMUS struct{}

func (embeddingMUS) Marshal(e Embedding, bs []byte) (n int) {
	n = IDMUS.Marshal(e.ChunkId, bs)
	n += IDMUS.Marshal(e.DocumentId, bs[n:])
	n += ord.String.Marshal(e.Model, bs[n:])
	n += varint.Uint64.Marshal(e.Seq, bs[n:])
	n += vectorSer.Marshal(e.Vector, bs[n:])
	return
}

func (embeddingMUS) Unmarshal(bs []byte) (e Embedding, n int, err error) {
	var n1 int
	if e.ChunkId, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if e.DocumentId, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.Model, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.Seq, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.Vector, n1, err = vectorSer.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	return
}

func (embeddingMUS) Size(e Embedding) (size int) {
	size = IDMUS.Size(e.ChunkId)
	size += IDMUS.Size(e.DocumentId)
	size += ord.String.Size(e.Model)
	size += varint.Uint64.Size(e.Seq)
	size += vectorSer.Size(e.Vector)
	return
}
