package signature

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

type mockDynamo struct {
	mock.Mock
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.ScanOutput)
	return out, args.Error(1)
}

const testHash = "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"

func testArtifact() *entity.SignatureArtifact {
	return &entity.SignatureArtifact{
		DocumentHash:   testHash,
		SignedAt:       time.Date(2025, 3, 14, 10, 0, 0, 42, time.UTC),
		Algorithm:      AlgECDSASHA256,
		SignatureValue: "c2ln",
		Binding:        entity.BindingRef{CompanyID: "c1", Tier: "high"},
	}
}

func TestDynamoAppend_Condicional(t *testing.T) {
	m := new(mockDynamo)
	store := NewDynamoArtifactStore(m, "artifacts")

	m.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		hash, ok := in.Item["document_hash"].(*types.AttributeValueMemberS)
		sk, okSK := in.Item["signed_at_key"].(*types.AttributeValueMemberS)
		return *in.TableName == "artifacts" &&
			*in.ConditionExpression == "attribute_not_exists(#pk) AND attribute_not_exists(#sk)" &&
			ok && hash.Value == testHash &&
			okSK && sk.Value == "2025-03-14T10:00:00.000000042Z"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()

	require.NoError(t, store.Append(context.Background(), testArtifact()))
	m.AssertExpectations(t)
}

func TestDynamoAppend_DuplicadoNoSobrescribe(t *testing.T) {
	m := new(mockDynamo)
	store := NewDynamoArtifactStore(m, "artifacts")
	m.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: new(string)}).Once()

	err := store.Append(context.Background(), testArtifact())
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestDynamoListByHash(t *testing.T) {
	m := new(mockDynamo)
	store := NewDynamoArtifactStore(m, "artifacts")

	item, err := attributevalue.MarshalMap(artifactItem{SignedAtKey: "k", SignatureArtifact: *testArtifact()})
	require.NoError(t, err)
	m.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil).Once()

	list, err := store.ListByHash(context.Background(), testHash)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, testHash, list[0].DocumentHash)
	assert.Equal(t, "c1", list[0].Binding.CompanyID)
	assert.True(t, list[0].SignedAt.Equal(testArtifact().SignedAt))
}
