package backup

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/vetle/clinicd/internal/model"
)

var errFakeCursor = errors.New("cursor iteration failed")

// ---------- Fake cursor ----------

// fakeCursor yields a fixed list of documents, optionally failing after a
// given number of them.
type fakeCursor struct {
	docs     []bson.M
	idx      int
	failAt   int // 1-based document index to fail at; 0 disables
	iterErr  error
	closed   bool
	closeCtx context.Context
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.failAt > 0 && c.idx+1 >= c.failAt {
		c.iterErr = errFakeCursor
		return false
	}
	if c.idx < len(c.docs) {
		c.idx++
		return true
	}
	return false
}

func (c *fakeCursor) Decode(val interface{}) error {
	out := val.(*bson.M)
	*out = c.docs[c.idx-1]
	return nil
}

func (c *fakeCursor) Err() error { return c.iterErr }

func (c *fakeCursor) Close(ctx context.Context) error {
	c.closed = true
	c.closeCtx = ctx
	return nil
}

// ---------- Fake database ----------

// fakeDatabase serves canned collections keyed by name.
type fakeDatabase struct {
	collections map[string][]bson.M
	names       []string
	failFind    map[string]bool
	findCalls   []string
}

func (d *fakeDatabase) CollectionNames(ctx context.Context) ([]string, error) {
	return d.names, nil
}

func (d *fakeDatabase) Find(ctx context.Context, collection string) (Cursor, error) {
	d.findCalls = append(d.findCalls, collection)
	if d.failFind[collection] {
		return &fakeCursor{failAt: 1}, nil
	}
	return &fakeCursor{docs: d.collections[collection]}, nil
}

// ---------- Mock history store ----------

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Insert(ctx context.Context, rec *model.BackupRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockHistory) List(ctx context.Context, limit int, cursor string) ([]model.BackupRecord, bool, error) {
	args := m.Called(ctx, limit, cursor)
	var records []model.BackupRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]model.BackupRecord)
	}
	return records, args.Bool(1), args.Error(2)
}

func (m *mockHistory) DeleteByPath(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}
