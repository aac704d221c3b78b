package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/chirino/collection-service/internal/model"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func stamp(ts ...*time.Time) {
	now := model.Timestamp(time.Now())
	for _, t := range ts {
		if t.IsZero() {
			*t = now
		}
	}
}

func notFound(resource string, id uuid.UUID) error {
	return &registrystore.NotFoundError{Resource: resource, ID: id.String()}
}

// findOne decodes the document with the given id, mapping a miss to NotFoundError.
func (s *MongoStore) findOne(ctx context.Context, coll, resource string, id uuid.UUID, out any) error {
	err := s.coll(coll).FindOne(ctx, bson.M{"_id": uuidToStr(id)}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(resource, id)
	}
	return translateError("get "+resource, err)
}

func (s *MongoStore) deleteOne(ctx context.Context, coll, resource string, id uuid.UUID) error {
	res, err := s.coll(coll).DeleteOne(ctx, bson.M{"_id": uuidToStr(id)})
	if err != nil {
		return translateError("delete "+resource, err)
	}
	if res.DeletedCount == 0 {
		return notFound(resource, id)
	}
	return nil
}

func (s *MongoStore) updateOne(ctx context.Context, coll, resource string, id uuid.UUID, set bson.M) error {
	res, err := s.coll(coll).UpdateOne(ctx, bson.M{"_id": uuidToStr(id)}, bson.M{"$set": set})
	if err != nil {
		return translateError("update "+resource, err)
	}
	if res.MatchedCount == 0 {
		return notFound(resource, id)
	}
	return nil
}

func findAll[D any, M any](ctx context.Context, s *MongoStore, coll, op string, filter bson.M, opts *options.FindOptionsBuilder, conv func(D) M) ([]M, error) {
	cur, err := s.coll(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, translateError(op, err)
	}
	var docs []D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translateError(op, err)
	}
	out := make([]M, 0, len(docs))
	for _, d := range docs {
		out = append(out, conv(d))
	}
	return out, nil
}

func ascending() *options.FindOptionsBuilder {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

// --- Collections ---

func (s *MongoStore) CreateCollection(ctx context.Context, c *model.Collection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	stamp(&c.CreatedAt, &c.UpdatedAt)
	_, err := s.coll(collectionsColl).InsertOne(ctx, collectionToDoc(c))
	return translateError("create collection", err)
}

func (s *MongoStore) GetCollection(ctx context.Context, id uuid.UUID) (*model.Collection, error) {
	var doc collectionDoc
	if err := s.findOne(ctx, collectionsColl, "collection", id, &doc); err != nil {
		return nil, err
	}
	c := doc.toModel()
	return &c, nil
}

func (s *MongoStore) ListCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	perms, err := findAll(ctx, s, permissionsColl, "list collections", bson.M{"user_id": userID}, options.Find(),
		func(d permissionDoc) string { return d.CollectionID })
	if err != nil {
		return nil, err
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"created_by": userID},
		bson.M{"_id": bson.M{"$in": perms}},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return findAll(ctx, s, collectionsColl, "list collections", filter, opts, collectionDoc.toModel)
}

func (s *MongoStore) UpdateCollection(ctx context.Context, c *model.Collection) error {
	stamp(&c.UpdatedAt)
	return s.updateOne(ctx, collectionsColl, "collection", c.ID, bson.M{
		"name":        c.Name,
		"description": c.Description,
		"updated_by":  c.UpdatedBy,
		"updated_at":  toMicros(c.UpdatedAt),
	})
}

func (s *MongoStore) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	return s.deleteOne(ctx, collectionsColl, "collection", id)
}

// --- Permissions ---

func (s *MongoStore) GetPermission(ctx context.Context, collectionID uuid.UUID, userID string) (*model.CollectionPermission, error) {
	var doc permissionDoc
	err := s.coll(permissionsColl).FindOne(ctx, bson.M{"_id": permissionKey(collectionID, userID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "permission", ID: permissionKey(collectionID, userID)}
	}
	if err != nil {
		return nil, translateError("get permission", err)
	}
	p := doc.toModel()
	return &p, nil
}

func (s *MongoStore) UpsertPermission(ctx context.Context, p *model.CollectionPermission) (*model.CollectionPermission, error) {
	stamp(&p.CreatedAt, &p.UpdatedAt)
	key := permissionKey(p.CollectionID, p.UserID)
	_, err := s.coll(permissionsColl).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{
			"$set": bson.M{
				"level":      p.Level,
				"granted_by": p.GrantedBy,
				"updated_at": toMicros(p.UpdatedAt),
			},
			"$setOnInsert": bson.M{
				"collection_id": uuidToStr(p.CollectionID),
				"user_id":       p.UserID,
				"created_at":    toMicros(p.CreatedAt),
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, translateError("upsert permission", err)
	}
	return s.GetPermission(ctx, p.CollectionID, p.UserID)
}

func (s *MongoStore) RemovePermission(ctx context.Context, collectionID uuid.UUID, userID string) (bool, error) {
	res, err := s.coll(permissionsColl).DeleteOne(ctx, bson.M{"_id": permissionKey(collectionID, userID)})
	if err != nil {
		return false, translateError("remove permission", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) ListPermissions(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionPermission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "user_id", Value: 1}})
	return findAll(ctx, s, permissionsColl, "list permissions",
		bson.M{"collection_id": uuidToStr(collectionID)}, opts, permissionDoc.toModel)
}

func (s *MongoStore) DeletePermissions(ctx context.Context, collectionID uuid.UUID) error {
	_, err := s.coll(permissionsColl).DeleteMany(ctx, bson.M{"collection_id": uuidToStr(collectionID)})
	return translateError("delete permissions", err)
}

// --- Audit log ---

func (s *MongoStore) AppendLog(ctx context.Context, e *model.PermissionLogEntry) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return &registrystore.StorageError{Op: "append log", Err: err}
		}
		e.ID = id
	}
	stamp(&e.CreatedAt)
	_, err := s.coll(logsColl).InsertOne(ctx, logDoc{
		ID:           uuidToStr(e.ID),
		CollectionID: uuidToStr(e.CollectionID),
		UserID:       e.UserID,
		Action:       e.Action,
		Level:        e.Level,
		PerformedBy:  e.PerformedBy,
		CreatedAt:    toMicros(e.CreatedAt),
	})
	return translateError("append log", err)
}

func (s *MongoStore) ListLogs(ctx context.Context, collectionID uuid.UUID) ([]model.PermissionLogEntry, error) {
	return findAll(ctx, s, logsColl, "list logs",
		bson.M{"collection_id": uuidToStr(collectionID)}, ascending(), logDoc.toModel)
}

// --- Chats ---

func (s *MongoStore) CreateChat(ctx context.Context, c *model.CollectionChat) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	stamp(&c.CreatedAt, &c.UpdatedAt)
	_, err := s.coll(chatsColl).InsertOne(ctx, chatToDoc(c))
	return translateError("create chat", err)
}

func (s *MongoStore) GetChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error) {
	var doc chatDoc
	if err := s.findOne(ctx, chatsColl, "chat", id, &doc); err != nil {
		return nil, err
	}
	c := doc.toModel()
	return &c, nil
}

// LockChat reads the chat. MongoDB has no row locks; concurrent writers are
// detected by the history version compare-and-set and by transaction write
// conflicts.
func (s *MongoStore) LockChat(ctx context.Context, id uuid.UUID) (*model.CollectionChat, error) {
	return s.GetChat(ctx, id)
}

func (s *MongoStore) ListChats(ctx context.Context, collectionID uuid.UUID) ([]model.CollectionChat, error) {
	return findAll(ctx, s, chatsColl, "list chats",
		bson.M{"collection_id": uuidToStr(collectionID)}, ascending(), chatDoc.toModel)
}

func (s *MongoStore) UpdateChat(ctx context.Context, c *model.CollectionChat) error {
	stamp(&c.UpdatedAt)
	return s.updateOne(ctx, chatsColl, "chat", c.ID, bson.M{
		"title":       c.Title,
		"description": c.Description,
		"updated_by":  c.UpdatedBy,
		"updated_at":  toMicros(c.UpdatedAt),
	})
}

func (s *MongoStore) AdvanceHistoryVersion(ctx context.Context, chatID uuid.UUID, expected int64) error {
	res, err := s.coll(chatsColl).UpdateOne(ctx,
		bson.M{"_id": uuidToStr(chatID), "history_version": expected},
		bson.M{"$inc": bson.M{"history_version": 1}},
	)
	if err != nil {
		return translateError("advance history version", err)
	}
	if res.MatchedCount == 0 {
		return &registrystore.ConflictError{
			Message: "chat history was modified concurrently: " + chatID.String(),
			Code:    "history_version",
		}
	}
	return nil
}

func (s *MongoStore) DeleteChat(ctx context.Context, id uuid.UUID) error {
	return s.deleteOne(ctx, chatsColl, "chat", id)
}

// --- History ---

func (s *MongoStore) InsertHistoryEntry(ctx context.Context, e *model.ChatHistoryEntry) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return &registrystore.StorageError{Op: "insert history entry", Err: err}
		}
		e.ID = id
	}
	stamp(&e.CreatedAt)
	_, err := s.coll(historyColl).InsertOne(ctx, historyDoc{
		ID:        uuidToStr(e.ID),
		ChatID:    uuidToStr(e.ChatID),
		Role:      e.Role,
		Content:   e.Content,
		CreatedBy: e.CreatedBy,
		CreatedAt: toMicros(e.CreatedAt),
	})
	return translateError("insert history entry", err)
}

func (s *MongoStore) GetHistoryEntry(ctx context.Context, id uuid.UUID) (*model.ChatHistoryEntry, error) {
	var doc historyDoc
	if err := s.findOne(ctx, historyColl, "history entry", id, &doc); err != nil {
		return nil, err
	}
	e := doc.toModel()
	return &e, nil
}

func (s *MongoStore) LastHistoryEntry(ctx context.Context, chatID uuid.UUID) (*model.ChatHistoryEntry, error) {
	var doc historyDoc
	err := s.coll(historyColl).FindOne(ctx,
		bson.M{"chat_id": uuidToStr(chatID)},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError("last history entry", err)
	}
	e := doc.toModel()
	return &e, nil
}

func (s *MongoStore) ListHistory(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]model.ChatHistoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	return findAll(ctx, s, historyColl, "list history", bson.M{"chat_id": uuidToStr(chatID)}, opts, historyDoc.toModel)
}

func (s *MongoStore) DeleteHistoryEntry(ctx context.Context, id uuid.UUID) error {
	return s.deleteOne(ctx, historyColl, "history entry", id)
}

func (s *MongoStore) DeleteHistoryFrom(ctx context.Context, chatID uuid.UUID, from time.Time) (int64, error) {
	res, err := s.coll(historyColl).DeleteMany(ctx, bson.M{
		"chat_id":    uuidToStr(chatID),
		"created_at": bson.M{"$gte": toMicros(from)},
	})
	if err != nil {
		return 0, translateError("truncate history", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteHistory(ctx context.Context, chatID uuid.UUID) (int64, error) {
	res, err := s.coll(historyColl).DeleteMany(ctx, bson.M{"chat_id": uuidToStr(chatID)})
	if err != nil {
		return 0, translateError("clear history", err)
	}
	return res.DeletedCount, nil
}

// --- Relations ---

func (s *MongoStore) CreateRelation(ctx context.Context, r *model.Relation) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	stamp(&r.CreatedAt, &r.UpdatedAt)
	_, err := s.coll(relationsColl).InsertOne(ctx, relationDoc{
		ID:           uuidToStr(r.ID),
		CollectionID: uuidToStr(r.CollectionID),
		Title:        r.Title,
		Description:  r.Description,
		CreatedBy:    r.CreatedBy,
		UpdatedBy:    r.UpdatedBy,
		CreatedAt:    toMicros(r.CreatedAt),
		UpdatedAt:    toMicros(r.UpdatedAt),
	})
	return translateError("create relation", err)
}

func (s *MongoStore) GetRelation(ctx context.Context, id uuid.UUID) (*model.Relation, error) {
	var doc relationDoc
	if err := s.findOne(ctx, relationsColl, "relation", id, &doc); err != nil {
		return nil, err
	}
	r := doc.toModel()
	return &r, nil
}

func (s *MongoStore) ListRelations(ctx context.Context, collectionID uuid.UUID) ([]model.Relation, error) {
	return findAll(ctx, s, relationsColl, "list relations",
		bson.M{"collection_id": uuidToStr(collectionID)}, ascending(), relationDoc.toModel)
}

func (s *MongoStore) UpdateRelation(ctx context.Context, r *model.Relation) error {
	stamp(&r.UpdatedAt)
	return s.updateOne(ctx, relationsColl, "relation", r.ID, bson.M{
		"title":       r.Title,
		"description": r.Description,
		"updated_by":  r.UpdatedBy,
		"updated_at":  toMicros(r.UpdatedAt),
	})
}

func (s *MongoStore) DeleteRelation(ctx context.Context, id uuid.UUID) error {
	return s.deleteOne(ctx, relationsColl, "relation", id)
}

// --- Nodes ---

func (s *MongoStore) CreateNode(ctx context.Context, n *model.Node) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	stamp(&n.CreatedAt, &n.UpdatedAt)
	_, err := s.coll(nodesColl).InsertOne(ctx, nodeDoc{
		ID:          uuidToStr(n.ID),
		RelationID:  uuidToStr(n.RelationID),
		Title:       n.Title,
		Description: n.Description,
		Type:        n.Type,
		Label:       n.Label,
		CreatedBy:   n.CreatedBy,
		UpdatedBy:   n.UpdatedBy,
		CreatedAt:   toMicros(n.CreatedAt),
		UpdatedAt:   toMicros(n.UpdatedAt),
	})
	return translateError("create node", err)
}

func (s *MongoStore) GetNode(ctx context.Context, id uuid.UUID) (*model.Node, error) {
	var doc nodeDoc
	if err := s.findOne(ctx, nodesColl, "node", id, &doc); err != nil {
		return nil, err
	}
	n := doc.toModel()
	return &n, nil
}

func (s *MongoStore) ListNodes(ctx context.Context, relationID uuid.UUID) ([]model.Node, error) {
	return findAll(ctx, s, nodesColl, "list nodes",
		bson.M{"relation_id": uuidToStr(relationID)}, ascending(), nodeDoc.toModel)
}

func (s *MongoStore) DeleteNode(ctx context.Context, id uuid.UUID) error {
	return s.deleteOne(ctx, nodesColl, "node", id)
}

func (s *MongoStore) DeleteNodes(ctx context.Context, relationID uuid.UUID) error {
	_, err := s.coll(nodesColl).DeleteMany(ctx, bson.M{"relation_id": uuidToStr(relationID)})
	return translateError("delete nodes", err)
}

// --- Edges ---

func (s *MongoStore) CreateEdge(ctx context.Context, e *model.Edge) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	stamp(&e.CreatedAt, &e.UpdatedAt)
	_, err := s.coll(edgesColl).InsertOne(ctx, edgeDoc{
		ID:         uuidToStr(e.ID),
		RelationID: uuidToStr(e.RelationID),
		Label:      e.Label,
		Source:     uuidToStr(e.Source),
		Target:     uuidToStr(e.Target),
		CreatedBy:  e.CreatedBy,
		UpdatedBy:  e.UpdatedBy,
		CreatedAt:  toMicros(e.CreatedAt),
		UpdatedAt:  toMicros(e.UpdatedAt),
	})
	return translateError("create edge", err)
}

func (s *MongoStore) GetEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error) {
	var doc edgeDoc
	if err := s.findOne(ctx, edgesColl, "edge", id, &doc); err != nil {
		return nil, err
	}
	e := doc.toModel()
	return &e, nil
}

func (s *MongoStore) ListEdges(ctx context.Context, relationID uuid.UUID) ([]model.Edge, error) {
	return findAll(ctx, s, edgesColl, "list edges",
		bson.M{"relation_id": uuidToStr(relationID)}, ascending(), edgeDoc.toModel)
}

func (s *MongoStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	return s.deleteOne(ctx, edgesColl, "edge", id)
}

func (s *MongoStore) DeleteEdges(ctx context.Context, relationID uuid.UUID) error {
	_, err := s.coll(edgesColl).DeleteMany(ctx, bson.M{"relation_id": uuidToStr(relationID)})
	return translateError("delete edges", err)
}

func (s *MongoStore) DeleteEdgesForNode(ctx context.Context, nodeID uuid.UUID) error {
	id := uuidToStr(nodeID)
	_, err := s.coll(edgesColl).DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"source": id},
		bson.M{"target": id},
	}})
	return translateError("delete node edges", err)
}
