package repository

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

var _ ports.RelationReader = (*Neo4jRelations)(nil)

// Neo4jRelations lit le pré-contrôle profil dans le graphe social.
// Les posts restent dans Postgres, seul le RelationReader change de backend.
type Neo4jRelations struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jRelations(driver neo4j.DriverWithContext) *Neo4jRelations {
	return &Neo4jRelations{driver: driver}
}

func (r *Neo4jRelations) GetOwner(ctx context.Context, ownerID string) (domain.Owner, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (u:User {id: $ownerId})
			RETURN coalesce(u.is_private, false) AS isPrivate,
			       coalesce(u.moderation_status, 'active') AS moderation
		`
		res, err := tx.Run(ctx, query, map[string]any{"ownerId": ownerID})
		if err != nil {
			return nil, err
		}

		owner := domain.Owner{ID: ownerID}
		if res.Next(ctx) {
			rec := res.Record()
			isPrivate, _ := rec.Get("isPrivate")
			moderation, _ := rec.Get("moderation")
			owner.Exists = true
			owner.IsPrivate, _ = isPrivate.(bool)
			status, _ := moderation.(string)
			owner.IsBanned = status == "banned" || status == "shadow_banned"
		}
		// Pas de noeud : owner inexistant
		return owner, res.Err()
	})
	if err != nil {
		return domain.Owner{}, err
	}
	return result.(domain.Owner), nil
}

func (r *Neo4jRelations) GetRelation(ctx context.Context, viewerID, ownerID string) (domain.Relation, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Une seule requête pour les trois flèches, blocage dans les deux sens
		query := `
			MATCH (v:User {id: $viewerId}), (o:User {id: $ownerId})
			RETURN EXISTS((v)-[:FOLLOWS {status: 'accepted'}]->(o)) AS follows,
			       EXISTS((v)-[:BLOCKS]-(o)) AS blocked,
			       EXISTS((v)-[:SUBSCRIBES {status: 'active'}]->(o)) AS subscribed
		`
		res, err := tx.Run(ctx, query, map[string]any{"viewerId": viewerID, "ownerId": ownerID})
		if err != nil {
			return nil, err
		}

		var rel domain.Relation
		if res.Next(ctx) {
			rec := res.Record()
			rel.Follows = recordBool(rec, "follows")
			rel.Blocked = recordBool(rec, "blocked")
			rel.Subscribed = recordBool(rec, "subscribed")
		}
		// Si un des noeuds manque, aucune relation
		return rel, res.Err()
	})
	if err != nil {
		return domain.Relation{}, err
	}
	return result.(domain.Relation), nil
}

func recordBool(rec *neo4j.Record, key string) bool {
	v, _ := rec.Get(key)
	b, _ := v.(bool)
	return b
}
