// Package dynamodb stores small blobs as DynamoDB items.
//
// Items live in one table with a string partition key "namespace" and a
// string sort key "name". The payload is a binary attribute "data":
//
//	aws dynamodb create-table \
//	  --table-name vecmem-blobs \
//	  --attribute-definitions AttributeName=namespace,AttributeType=S AttributeName=name,AttributeType=S \
//	  --key-schema AttributeName=namespace,KeyType=HASH AttributeName=name,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
//
// DynamoDB caps items at 400KB, so this store suits compressed snapshots of
// small collections only.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/vecmem/blobstore"
)

const (
	attrNamespace = "namespace"
	attrName      = "name"
	attrData      = "data"
)

// MaxBlobSize leaves headroom below the 400KB item limit for the keys.
const MaxBlobSize = 390 * 1024

// ErrTooLarge is returned by Put for payloads above MaxBlobSize.
var ErrTooLarge = errors.New("blob exceeds dynamodb item size")

// Client is the subset of the DynamoDB API used by Store.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Options contains configuration options for the DynamoDB store.
type Options struct {
	// Namespace is the partition key value. Default: "default".
	Namespace string

	// Region overrides the region from the shared AWS config.
	Region string

	// Client replaces the client built from the shared AWS config.
	Client Client
}

// DefaultOptions contains the default configuration options for the DynamoDB store.
var DefaultOptions = Options{
	Namespace: "default",
}

// Store implements blobstore.Store on a DynamoDB table.
type Store struct {
	client    Client
	table     string
	namespace string
}

// Compile-time check to ensure Store satisfies the blobstore.Store interface.
var _ blobstore.Store = (*Store)(nil)

// New creates a DynamoDB store on table.
func New(ctx context.Context, table string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if table == "" {
		return nil, errors.New("dynamodb: table must not be empty")
	}
	if opts.Namespace == "" {
		return nil, errors.New("dynamodb: namespace must not be empty")
	}

	client := opts.Client
	if client == nil {
		var cfgOpts []func(*config.LoadOptions) error
		if opts.Region != "" {
			cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
		}
		client = dynamodb.NewFromConfig(cfg)
	}

	return &Store{client: client, table: table, namespace: opts.Namespace}, nil
}

func (s *Store) itemKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrNamespace: &types.AttributeValueMemberS{Value: s.namespace},
		attrName:      &types.AttributeValueMemberS{Value: name},
	}
}

// Put writes a blob as one item.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if len(data) > MaxBlobSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, len(data))
	}

	item := s.itemKey(name)
	item[attrData] = &types.AttributeValueMemberB{Value: data}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb: put %s: %w", name, err)
	}
	return nil
}

// Get reads a blob with a strongly consistent read.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: get %s: %w", name, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
	}

	b, ok := out.Item[attrData].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("dynamodb: get %s: item has no binary %q attribute", name, attrData)
	}
	return b.Value, nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(name),
	}); err != nil {
		return fmt.Errorf("dynamodb: delete %s: %w", name, err)
	}
	return nil
}

// List returns the names in the namespace that start with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#ns = :ns"),
		ExpressionAttributeNames: map[string]string{
			"#ns": attrNamespace,
			"#n":  attrName,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ns": &types.AttributeValueMemberS{Value: s.namespace},
		},
		ProjectionExpression: aws.String("#n"),
	}
	if prefix != "" {
		input.KeyConditionExpression = aws.String("#ns = :ns AND begins_with(#n, :prefix)")
		input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: prefix}
	}

	var names []string

	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: list %s: %w", prefix, err)
		}
		for _, item := range page.Items {
			if n, ok := item[attrName].(*types.AttributeValueMemberS); ok {
				names = append(names, n.Value)
			}
		}
	}

	sort.Strings(names)
	return names, nil
}
