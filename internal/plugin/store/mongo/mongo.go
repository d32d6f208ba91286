package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrymigrate "github.com/TruongKhoiNguyen/Agora-api/internal/registry/migrate"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultDatabase is used when neither the URL nor the config names one.
const DefaultDatabase = "agora"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.Store, error) {
			cfg := config.FromContext(ctx)
			client, err := Connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return &MongoStore{client: client, db: client.Database(DatabaseName(cfg))}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// Connect opens and pings a client for cfg.DBURL.
func Connect(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.DBURL)
	if cfg.DBMaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// DatabaseName resolves the database from config, then the URL path.
func DatabaseName(cfg *config.Config) string {
	if cfg != nil && cfg.MongoDatabase != "" {
		return cfg.MongoDatabase
	}
	if cfg != nil {
		if name := databaseFromURL(cfg.DBURL); name != "" {
			return name
		}
	}
	return DefaultDatabase
}

var urlDatabase = regexp.MustCompile(`^mongodb(?:\+srv)?://[^/]+/([^?/]+)`)

func databaseFromURL(raw string) string {
	if m := urlDatabase.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" && cfg.DirectoryType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(DatabaseName(cfg))

	collections := map[string][]mongo.IndexModel{
		"conversations": {
			{Keys: bson.D{{Key: "members", Value: 1}, {Key: "last_message_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "direct_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_direct_pair"),
			},
		},
		"messages": {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "_id", Value: -1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
	}

	for name, indexes := range collections {
		// Ensure collection exists
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// MongoStore implements Store using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps an already connected database.
func New(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{client: client, db: db}
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// --- MongoDB document types ---

type convDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	IsGroup       bool      `bson:"is_group"`
	Members       []string  `bson:"members"`
	Admins        []string  `bson:"admins"`
	Thumb         string    `bson:"thumb,omitempty"`
	DirectKey     *string   `bson:"direct_key,omitempty"`
	LastMessageID string    `bson:"last_message_id,omitempty"`
	MessageCount  int64     `bson:"message_count"`
	LastMessageAt time.Time `bson:"last_message_at"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type messageDoc struct {
	ID             string            `bson:"_id"`
	ConversationID string            `bson:"conversation_id"`
	Sender         string            `bson:"sender"`
	Content        string            `bson:"content,omitempty"`
	Images         []string          `bson:"images,omitempty"`
	Type           model.MessageType `bson:"type"`
	SeenUsers      []string          `bson:"seen_users"`
	CreatedAt      time.Time         `bson:"created_at"`
}

func (s *MongoStore) conversations() *mongo.Collection { return s.db.Collection("conversations") }
func (s *MongoStore) messages() *mongo.Collection      { return s.db.Collection("messages") }

func toConvDoc(c *model.Conversation) convDoc {
	return convDoc{
		ID:            c.ID,
		Name:          c.Name,
		IsGroup:       c.IsGroup,
		Members:       nonNil(c.Members),
		Admins:        nonNil(c.Admins),
		Thumb:         c.Thumb,
		DirectKey:     c.DirectKey,
		LastMessageID: c.LastMessageID,
		MessageCount:  c.MessageCount,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (d convDoc) toModel() *model.Conversation {
	return &model.Conversation{
		ID:            d.ID,
		Name:          d.Name,
		IsGroup:       d.IsGroup,
		Members:       nonNil(d.Members),
		Admins:        nonNil(d.Admins),
		Thumb:         d.Thumb,
		DirectKey:     d.DirectKey,
		LastMessageID: d.LastMessageID,
		MessageCount:  d.MessageCount,
		LastMessageAt: d.LastMessageAt.UTC(),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

func toMessageDoc(m *model.Message) messageDoc {
	return messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         m.Sender,
		Content:        m.Content,
		Images:         m.Images,
		Type:           m.Type,
		SeenUsers:      nonNil(m.SeenUsers),
		CreatedAt:      m.CreatedAt,
	}
}

func (d messageDoc) toModel() *model.Message {
	return &model.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Sender:         d.Sender,
		Content:        d.Content,
		Images:         d.Images,
		Type:           d.Type,
		SeenUsers:      nonNil(d.SeenUsers),
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// containsPattern matches s literally and case-insensitively.
func containsPattern(s string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// --- Conversations ---

func (s *MongoStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if _, err := s.conversations().InsertOne(ctx, toConvDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &registrystore.ConflictError{Message: "conversation already exists", Code: "duplicate_direct"}
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) FindDirectConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	key := model.DirectKey(a, b)
	var doc convDoc
	if err := s.conversations().FindOne(ctx, bson.M{"direct_key": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "conversation", ID: key}
		}
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) GetConversation(ctx context.Context, conversationID, userID string, access registrystore.Access) (*model.Conversation, error) {
	filter := bson.M{"_id": conversationID}
	if access == registrystore.AccessAdmin {
		filter["admins"] = userID
	} else {
		filter["members"] = userID
	}
	var doc convDoc
	if err := s.conversations().FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string, query registrystore.ListConversationsQuery) ([]model.Conversation, error) {
	filter := bson.M{"members": userID}
	if query.NameContains != "" {
		filter["name"] = containsPattern(query.NameContains)
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: -1}})
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}
	cursor, err := s.conversations().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var docs []convDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]model.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.toModel())
	}
	return out, nil
}

// mutationFilter renders the precondition of m as a query on one document.
func mutationFilter(conversationID string, m registrystore.Mutation) bson.M {
	and := bson.A{bson.M{"_id": conversationID}}
	if m.RequireGroup {
		and = append(and, bson.M{"is_group": true})
	}
	if m.AdminIs != "" {
		and = append(and, bson.M{"admins": m.AdminIs})
	}
	if m.MemberIs != "" {
		and = append(and, bson.M{"members": m.MemberIs})
	}
	if m.NotAdmin != "" {
		and = append(and, bson.M{"admins": bson.M{"$ne": m.NotAdmin}})
	}
	if m.NotSoleAdmin != "" {
		and = append(and, bson.M{"admins": bson.M{"$ne": bson.A{m.NotSoleAdmin}}})
	}
	return bson.M{"$and": and}
}

// mutationUpdate renders the changes of m. A field may be added to or
// removed from in one mutation, not both.
func mutationUpdate(m registrystore.Mutation, now time.Time) (bson.M, error) {
	if (len(m.AddMembers) > 0 && len(m.RemoveMembers) > 0) || (len(m.AddAdmins) > 0 && len(m.RemoveAdmins) > 0) {
		return nil, fmt.Errorf("mutation adds to and removes from the same set")
	}
	set := bson.M{"updated_at": now}
	if m.SetName != nil {
		set["name"] = *m.SetName
	}
	if m.SetThumb != nil {
		set["thumb"] = *m.SetThumb
	}
	update := bson.M{"$set": set}

	addToSet := bson.M{}
	if len(m.AddMembers) > 0 {
		addToSet["members"] = bson.M{"$each": m.AddMembers}
	}
	if len(m.AddAdmins) > 0 {
		addToSet["admins"] = bson.M{"$each": m.AddAdmins}
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}

	pull := bson.M{}
	if len(m.RemoveMembers) > 0 {
		pull["members"] = bson.M{"$in": m.RemoveMembers}
	}
	if len(m.RemoveAdmins) > 0 {
		pull["admins"] = bson.M{"$in": m.RemoveAdmins}
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	return update, nil
}

func (s *MongoStore) MutateConversation(ctx context.Context, conversationID string, m registrystore.Mutation) (*model.Conversation, *model.Conversation, error) {
	now := time.Now().UTC()
	update, err := mutationUpdate(m, now)
	if err != nil {
		return nil, nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var doc convDoc
	err = s.conversations().FindOneAndUpdate(ctx, mutationFilter(conversationID, m), update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, registrystore.ErrNoMatch
		}
		return nil, nil, fmt.Errorf("mutate conversation: %w", err)
	}
	before := doc.toModel()
	after := m.Apply(*doc.toModel())
	after.UpdatedAt = now.Truncate(time.Millisecond)
	return before, &after, nil
}

func (s *MongoStore) RecordMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	res, err := s.conversations().UpdateByID(ctx, conversationID, bson.M{
		"$max": bson.M{"last_message_at": at, "last_message_id": messageID},
		"$inc": bson.M{"message_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return nil
}

// --- Messages ---

func (s *MongoStore) InsertMessage(ctx context.Context, m *model.Message) error {
	if _, err := s.messages().InsertOne(ctx, toMessageDoc(m)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &registrystore.ConflictError{Message: "message already exists", Code: "duplicate_id"}
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *MongoStore) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	var doc messageDoc
	err := s.messages().FindOne(ctx, bson.M{"_id": messageID, "conversation_id": conversationID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	var doc messageDoc
	if err := s.messages().FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ListMessages(ctx context.Context, q registrystore.MessageQuery) ([]model.Message, error) {
	filter := bson.M{"conversation_id": q.ConversationID}
	idRange := bson.M{}
	if q.Before != "" {
		idRange["$lt"] = q.Before
	}
	if q.AtOrAfter != "" {
		idRange["$gte"] = q.AtOrAfter
	}
	if len(idRange) > 0 {
		filter["_id"] = idRange
	}
	if q.Contains != "" {
		filter["content"] = containsPattern(q.Contains)
	}
	direction := -1
	if q.Ascending {
		direction = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: direction}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.toModel())
	}
	return out, nil
}

func (s *MongoStore) AddSeenUser(ctx context.Context, conversationID, messageID, userID string) (*model.Message, bool, error) {
	filter := bson.M{
		"_id":             messageID,
		"conversation_id": conversationID,
		"sender":          bson.M{"$ne": userID},
		"seen_users":      bson.M{"$ne": userID},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc messageDoc
	err := s.messages().FindOneAndUpdate(ctx, filter, bson.M{"$push": bson.M{"seen_users": userID}}, opts).Decode(&doc)
	if err == nil {
		return doc.toModel(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("add seen user: %w", err)
	}
	current, err := s.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ registrystore.Store = (*MongoStore)(nil)
