package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/chatgate/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// usersCollection はユーザードキュメントを格納するコレクション名。
const usersCollection = "users"

// mongoUser はusersコレクションのドキュメント表現。
// _idはMongoDBが採番するObjectIDで、外部へはhex文字列として公開する。
type mongoUser struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	ExternalID  string        `bson:"external_id"`
	DisplayName string        `bson:"display_name"`
	Email       string        `bson:"email"`
	AvatarURL   string        `bson:"avatar_url"`
	CreatedAt   time.Time     `bson:"created_at"`
}

func (d *mongoUser) toModel() *model.User {
	return &model.User{
		ID:          d.ID.Hex(),
		ExternalID:  d.ExternalID,
		DisplayName: d.DisplayName,
		Email:       d.Email,
		AvatarURL:   d.AvatarURL,
		CreatedAt:   d.CreatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
// external_idの一意性はEnsureIndexesで作成するユニークインデックスに依存する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(usersCollection)}
}

// EnsureIndexes はexternal_idのユニークインデックスを作成する。冪等。
func (r *MongoUserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "external_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("external_id_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create external_id index: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。
// IDがObjectIDとして不正な場合も見つからない扱いとする。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

// FindByExternalID はexternal_idでユーザーを取得する。
func (r *MongoUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "external_id", Value: externalID}})
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.D) (*model.User, error) {
	var doc mongoUser
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toModel(), nil
}

// Insert はユーザードキュメントを作成する。
// ユニークインデックス違反はmodel.ErrDuplicateKeyに変換する。
func (r *MongoUserRepo) Insert(ctx context.Context, profile *model.Profile) (*model.User, error) {
	doc := mongoUser{
		ExternalID:  profile.ExternalID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
		// BSONの日時はミリ秒精度
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("external_id %q: %w", profile.ExternalID, model.ErrDuplicateKey)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return nil, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	doc.ID = oid

	return doc.toModel(), nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
