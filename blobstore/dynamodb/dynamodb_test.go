package dynamodb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmem/blobstore"
)

// fakeDDB keeps items in memory and pages Query results two at a time.
type fakeDDB struct {
	mu      sync.Mutex
	items   map[string]map[string][]byte // namespace -> name -> data
	queries int
	failPut error
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[string][]byte)}
}

func keyOf(key map[string]types.AttributeValue) (string, string) {
	ns := key[attrNamespace].(*types.AttributeValueMemberS).Value
	name := key[attrName].(*types.AttributeValueMemberS).Value
	return ns, name
}

func (f *fakeDDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ns, name := keyOf(params.Item)
	if f.items[ns] == nil {
		f.items[ns] = make(map[string][]byte)
	}
	f.items[ns][name] = append([]byte(nil), params.Item[attrData].(*types.AttributeValueMemberB).Value...)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns, name := keyOf(params.Key)
	data, ok := f.items[ns][name]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	item := map[string]types.AttributeValue{
		attrNamespace: &types.AttributeValueMemberS{Value: ns},
		attrName:      &types.AttributeValueMemberS{Value: name},
		attrData:      &types.AttributeValueMemberB{Value: data},
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDDB) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns, name := keyOf(params.Key)
	delete(f.items[ns], name)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDDB) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	ns := params.ExpressionAttributeValues[":ns"].(*types.AttributeValueMemberS).Value
	prefix := ""
	if p, ok := params.ExpressionAttributeValues[":prefix"]; ok {
		prefix = p.(*types.AttributeValueMemberS).Value
	}

	var names []string
	for name := range f.items[ns] {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := 0
	if params.ExclusiveStartKey != nil {
		_, last := keyOf(params.ExclusiveStartKey)
		start = sort.SearchStrings(names, last) + 1
	}
	end := min(start+2, len(names))

	out := &dynamodb.QueryOutput{}
	for _, name := range names[start:end] {
		out.Items = append(out.Items, map[string]types.AttributeValue{
			attrName: &types.AttributeValueMemberS{Value: name},
		})
	}
	if end < len(names) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			attrNamespace: &types.AttributeValueMemberS{Value: ns},
			attrName:      &types.AttributeValueMemberS{Value: names[end-1]},
		}
	}
	return out, nil
}

func newTestStore(t *testing.T, client Client, namespace string) *Store {
	t.Helper()
	s, err := New(context.Background(), "vecmem-blobs", func(o *Options) {
		o.Client = client
		o.Namespace = namespace
	})
	require.NoError(t, err)
	return s
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDB()
	s := newTestStore(t, ddb, "tenant-a")

	for _, name := range []string{"snap/3", "snap/1", "snap/2", "other", "snap/4"} {
		require.NoError(t, s.Put(ctx, name, []byte("data-"+name)))
	}

	got, err := s.Get(ctx, "snap/2")
	require.NoError(t, err)
	assert.Equal(t, "data-snap/2", string(got))

	names, err := s.List(ctx, "snap/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap/1", "snap/2", "snap/3", "snap/4"}, names)
	assert.Equal(t, 2, ddb.queries, "results are paginated")

	names, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, names, 5)

	require.NoError(t, s.Delete(ctx, "snap/2"))
	_, err = s.Get(ctx, "snap/2")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDB()
	a := newTestStore(t, ddb, "a")
	b := newTestStore(t, ddb, "b")

	require.NoError(t, a.Put(ctx, "snap", []byte("from a")))

	_, err := b.Get(ctx, "snap")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	names, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDB()
	s := newTestStore(t, ddb, "a")

	require.ErrorIs(t, s.Put(ctx, "big", make([]byte, MaxBlobSize+1)), ErrTooLarge)

	boom := errors.New("provisioned throughput exceeded")
	ddb.failPut = boom
	require.ErrorIs(t, s.Put(ctx, "x", []byte("x")), boom)

	_, err := New(ctx, "", func(o *Options) { o.Client = ddb })
	require.Error(t, err)
	_, err = New(ctx, "t", func(o *Options) {
		o.Client = ddb
		o.Namespace = ""
	})
	require.Error(t, err)
}
