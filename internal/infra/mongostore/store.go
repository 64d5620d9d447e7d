// Package mongostore guarda el roster y los recursos por guild en MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jose-valero/roster-bot/internal/domain"
)

const resourcesCollection = "guild_resources"

type entryDoc struct {
	ID           string    `bson:"_id"`
	GuildID      string    `bson:"guildId"`
	UserID       string    `bson:"userId"`
	DisplayName  string    `bson:"displayName"`
	ClockInTime  time.Time `bson:"clockInTime"`
	ClockOutTime time.Time `bson:"clockOutTime"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type resourcesDoc struct {
	GuildID           string            `bson:"_id"`
	ActiveRoleID      string            `bson:"activeRoleId"`
	ControlChannelID  string            `bson:"controlChannelId"`
	RosterChannelID   string            `bson:"rosterChannelId"`
	ControlMessageID  string            `bson:"controlMessageId"`
	RosterMessageID   string            `bson:"rosterMessageId"`
	PreferenceRoleIDs map[string]string `bson:"preferenceRoleIds"`
	UpdatedAt         time.Time         `bson:"updatedAt"`
}

// Store implementa service.RosterStore y service.ResourceStore.
type Store struct {
	client    *mongo.Client
	entries   *mongo.Collection
	resources *mongo.Collection
}

// Connect abre el cliente, hace ping y devuelve el store sobre la base dada.
// collection es el nombre de la colección del roster (config).
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(database)
	return &Store{
		client:    client,
		entries:   db.Collection(collection),
		resources: db.Collection(resourcesCollection),
	}, nil
}

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// EnsureIndexes crea el índice compuesto (guildId, userId, clockOutTime) y
// uno por (guildId, clockOutTime) para el sweep. Idempotente.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "userId", Value: 1}, {Key: "clockOutTime", Value: 1}}},
		{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "clockOutTime", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) FindActive(ctx context.Context, guildID, userID string, now time.Time) ([]domain.RosterEntry, error) {
	return s.find(ctx, bson.M{"guildId": guildID, "userId": userID, "clockOutTime": bson.M{"$gt": now}}, byInsertion())
}

// Insert es un upsert filtrado por una entrada activa del par: si matchea,
// ya había una y devolvemos domain.ErrConflict.
func (s *Store) Insert(ctx context.Context, e domain.RosterEntry) error {
	filter := bson.M{
		"guildId":      e.GuildID,
		"userId":       e.UserID,
		"clockOutTime": bson.M{"$gt": e.ClockInTime},
	}
	// guildId y userId salen de la igualdad del filtro.
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          e.ID,
		"displayName":  e.DisplayName,
		"clockInTime":  e.ClockInTime,
		"clockOutTime": e.ClockOutTime,
		"createdAt":    e.CreatedAt,
	}}
	res, err := s.entries.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return err
	}
	if res.MatchedCount > 0 {
		return domain.ErrConflict
	}
	return nil
}

func (s *Store) DeleteActive(ctx context.Context, guildID, userID string, now time.Time) (int64, error) {
	return s.delete(ctx, bson.M{"guildId": guildID, "userId": userID, "clockOutTime": bson.M{"$gt": now}})
}

func (s *Store) ListActive(ctx context.Context, guildID string, now time.Time) ([]domain.RosterEntry, error) {
	return s.find(ctx, bson.M{"guildId": guildID, "clockOutTime": bson.M{"$gt": now}}, byInsertion())
}

func (s *Store) ListAll(ctx context.Context, guildID string) ([]domain.RosterEntry, error) {
	return s.find(ctx, bson.M{"guildId": guildID}, byInsertion())
}

func (s *Store) DeleteByIDs(ctx context.Context, guildID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.delete(ctx, bson.M{"guildId": guildID, "_id": bson.M{"$in": ids}})
}

func (s *Store) FindExpired(ctx context.Context, guildID string, now time.Time) ([]domain.RosterEntry, error) {
	return s.find(ctx, bson.M{"guildId": guildID, "clockOutTime": bson.M{"$lte": now}},
		options.Find().SetSort(bson.D{{Key: "clockOutTime", Value: 1}}))
}

func (s *Store) DeleteExpired(ctx context.Context, guildID string, now time.Time) (int64, error) {
	return s.delete(ctx, bson.M{"guildId": guildID, "clockOutTime": bson.M{"$lte": now}})
}

func (s *Store) Guilds(ctx context.Context) ([]string, error) {
	raw, err := s.entries.Distinct(ctx, "guildId", bson.D{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if g, ok := v.(string); ok {
			out = append(out, g)
		}
	}
	ids, err := s.resources.Distinct(ctx, "_id", bson.D{})
	if err != nil {
		return nil, err
	}
	for _, v := range ids {
		if g, ok := v.(string); ok && !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	slices.Sort(out)
	return out, nil
}

// ---------- recursos ----------

func (s *Store) GetResources(ctx context.Context, guildID string) (domain.GuildResources, error) {
	var d resourcesDoc
	err := s.resources.FindOne(ctx, bson.M{"_id": guildID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.GuildResources{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.GuildResources{}, err
	}
	return fromResourcesDoc(d), nil
}

func (s *Store) UpsertResources(ctx context.Context, g domain.GuildResources) error {
	d := toResourcesDoc(g)
	d.UpdatedAt = time.Now().UTC()
	_, err := s.resources.ReplaceOne(ctx, bson.M{"_id": g.GuildID}, d, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) ListResources(ctx context.Context) ([]domain.GuildResources, error) {
	cur, err := s.resources.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []resourcesDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.GuildResources, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromResourcesDoc(d))
	}
	return out, nil
}

// ---------- internos ----------

func byInsertion() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "clockInTime", Value: 1}, {Key: "createdAt", Value: 1}})
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.RosterEntry, error) {
	cur, err := s.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.RosterEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromEntryDoc(d))
	}
	return out, nil
}

func (s *Store) delete(ctx context.Context, filter bson.M) (int64, error) {
	res, err := s.entries.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func fromEntryDoc(d entryDoc) domain.RosterEntry {
	return domain.RosterEntry{
		ID: d.ID, GuildID: d.GuildID, UserID: d.UserID, DisplayName: d.DisplayName,
		ClockInTime: d.ClockInTime.UTC(), ClockOutTime: d.ClockOutTime.UTC(), CreatedAt: d.CreatedAt.UTC(),
	}
}

func toResourcesDoc(g domain.GuildResources) resourcesDoc {
	prefs := g.PreferenceRoleIDs
	if prefs == nil {
		prefs = map[string]string{}
	}
	return resourcesDoc{
		GuildID: g.GuildID, ActiveRoleID: g.ActiveRoleID,
		ControlChannelID: g.ControlChannelID, RosterChannelID: g.RosterChannelID,
		ControlMessageID: g.ControlMessageID, RosterMessageID: g.RosterMessageID,
		PreferenceRoleIDs: prefs, UpdatedAt: g.UpdatedAt,
	}
}

func fromResourcesDoc(d resourcesDoc) domain.GuildResources {
	prefs := d.PreferenceRoleIDs
	if prefs == nil {
		prefs = map[string]string{}
	}
	return domain.GuildResources{
		GuildID: d.GuildID, ActiveRoleID: d.ActiveRoleID,
		ControlChannelID: d.ControlChannelID, RosterChannelID: d.RosterChannelID,
		ControlMessageID: d.ControlMessageID, RosterMessageID: d.RosterMessageID,
		PreferenceRoleIDs: prefs, UpdatedAt: d.UpdatedAt.UTC(),
	}
}
