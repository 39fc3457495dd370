package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// defaultMongoDatabase はURIにデータベース名がない場合に使う名前。
const defaultMongoDatabase = "chatgate"

// OpenMongo はMongoDBクライアントを生成し、プライマリへの疎通を確認する。
// 戻り値のクライアントは呼び出し側がDisconnectで閉じること。
func OpenMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// MongoDatabaseName はURIのパス部分からデータベース名を取り出す。
func MongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return defaultMongoDatabase
	}
	return name
}
