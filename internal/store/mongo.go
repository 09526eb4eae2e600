package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lanchat/internal/model"
)

// mongo dates only keep milliseconds; ordering uses createdAtUs
type mongoMessage struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Conversation string             `bson:"conversation"`
	Scope        string             `bson:"scope"`
	SenderID     string             `bson:"senderId"`
	SenderName   string             `bson:"senderName"`
	RecipientID  string             `bson:"recipientId,omitempty"`
	Message      string             `bson:"message"`
	Timestamp    time.Time          `bson:"timestamp"`
	CreatedAtUS  int64              `bson:"createdAtUs"`
}

// MongoStore persists messages in the chat_messages collection
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoClient connects and pings
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// NewMongoStore ensures the conversation index exists
func NewMongoStore(ctx context.Context, client *mongo.Client, database string) (*MongoStore, error) {
	coll := client.Database(database).Collection(collectionName)
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation", Value: 1}, {Key: "createdAtUs", Value: -1}},
		Options: options.Index().SetName("conversation_created_idx"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, ix); err != nil {
		return nil, err
	}
	return &MongoStore{client: client, coll: coll}, nil
}

func (s *MongoStore) Insert(ctx context.Context, msg *model.Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	msg.CreatedAt = model.Timestamp(msg.CreatedAt)

	doc := mongoMessage{
		Conversation: msg.Conversation().Key(),
		Scope:        string(msg.Scope),
		SenderID:     msg.SenderID,
		SenderName:   msg.SenderName,
		RecipientID:  msg.RecipientID,
		Message:      msg.Body,
		Timestamp:    msg.CreatedAt,
		CreatedAtUS:  msg.CreatedAt.UnixMicro(),
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid.Hex()
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]model.Message, error) {
	filter := bson.M{"conversation": q.Conversation.Key()}
	if q.Before != nil {
		filter["createdAtUs"] = bson.M{"$lt": q.Before.UnixMicro()}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAtUs", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limitOf(q)))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []model.Message{}
	for cur.Next(ctx) {
		var d mongoMessage
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, model.Message{
			ID:          d.ID.Hex(),
			SenderID:    d.SenderID,
			SenderName:  d.SenderName,
			RecipientID: d.RecipientID,
			Scope:       model.Scope(d.Scope),
			Body:        d.Message,
			CreatedAt:   time.UnixMicro(d.CreatedAtUS).UTC(),
		})
	}
	return out, cur.Err()
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
