package signature

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

// Formato de la clave de ordenación: ancho fijo para que el orden lexicográfico sea cronológico.
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

// DynamoAPI subconjunto del cliente DynamoDB usado por el almacén.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// artifactItem registro DynamoDB. Tabla: PK document_hash (S), SK signed_at_key (S).
// document_hash lo aporta el artefacto embebido.
type artifactItem struct {
	SignedAtKey string `dynamodbav:"signed_at_key"`
	entity.SignatureArtifact
}

// DynamoArtifactStore almacén append-only sobre DynamoDB con PutItem condicional.
type DynamoArtifactStore struct {
	ddb       DynamoAPI
	tableName string
}

var _ repository.SignatureArtifactRepository = (*DynamoArtifactStore)(nil)

// NewDynamoArtifactStore construye el almacén sobre la tabla indicada.
func NewDynamoArtifactStore(ddb DynamoAPI, tableName string) *DynamoArtifactStore {
	return &DynamoArtifactStore{ddb: ddb, tableName: tableName}
}

// NewDynamoClient crea el cliente. Con endpoint (DynamoDB local) se usan credenciales estáticas.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if endpoint != "" {
		// DynamoDB local no valida credenciales, pero el SDK las exige.
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == dynamodb.ServiceID {
				return aws.Endpoint{URL: endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(resolver))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("configuración AWS: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// Append inserta el artefacto si la clave (hash, instante) no existe.
func (s *DynamoArtifactStore) Append(ctx context.Context, a *entity.SignatureArtifact) error {
	item := artifactItem{
		SignedAtKey:       a.SignedAt.UTC().Format(sortKeyLayout),
		SignatureArtifact: *a,
	}
	item.DocumentHash = strings.ToUpper(a.DocumentHash)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("serializar artefacto: %w", err)
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#pk) AND attribute_not_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "document_hash",
			"#sk": "signed_at_key",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("guardar artefacto: %w", err)
	}
	return nil
}

// ListByHash consulta por clave de partición, en orden cronológico.
func (s *DynamoArtifactStore) ListByHash(ctx context.Context, documentHash string) ([]*entity.SignatureArtifact, error) {
	p := dynamodb.NewQueryPaginator(s.ddb, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :h"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "document_hash",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: strings.ToUpper(documentHash)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})
	var out []*entity.SignatureArtifact
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("consultar artefactos: %w", err)
		}
		items, err := unmarshalArtifacts(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// List recorre la tabla completa (volumen acotado: una firma por factura y reintento).
func (s *DynamoArtifactStore) List(ctx context.Context) ([]*entity.SignatureArtifact, error) {
	p := dynamodb.NewScanPaginator(s.ddb, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	var out []*entity.SignatureArtifact
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("recorrer artefactos: %w", err)
		}
		items, err := unmarshalArtifacts(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignedAt.Before(out[j].SignedAt) })
	return out, nil
}

func unmarshalArtifacts(items []map[string]types.AttributeValue) ([]*entity.SignatureArtifact, error) {
	out := make([]*entity.SignatureArtifact, 0, len(items))
	for _, raw := range items {
		var it artifactItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("leer artefacto: %w", err)
		}
		a := it.SignatureArtifact
		if a.SignedAt.IsZero() {
			if t, err := time.Parse(sortKeyLayout, it.SignedAtKey); err == nil {
				a.SignedAt = t
			}
		}
		out = append(out, &a)
	}
	return out, nil
}
