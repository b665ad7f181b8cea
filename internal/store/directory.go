package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"freelancer-bot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) ListFreelancers(ctx context.Context, limit int) ([]models.Freelancer, error) {
	return s.findFreelancers(ctx, bson.M{}, limit)
}

// FindFreelancersByCategory matches category case-insensitively, verified freelancers first.
func (s *MongoStore) FindFreelancersByCategory(ctx context.Context, category string, limit int) ([]models.Freelancer, error) {
	if category == "" {
		return nil, nil
	}
	filter := bson.M{"category": bson.M{"$regex": "^" + regexp.QuoteMeta(category) + "$", "$options": "i"}}
	return s.findFreelancers(ctx, filter, limit)
}

// FindVerifiedFreelancer returns any verified freelancer, preferring available ones.
func (s *MongoStore) FindVerifiedFreelancer(ctx context.Context) (*models.Freelancer, error) {
	var f models.Freelancer
	opts := options.FindOne().SetSort(bson.D{{Key: "is_available", Value: -1}, {Key: "rating", Value: -1}})
	err := s.collection(CollectionFreelancers).FindOne(ctx, bson.M{"is_verified": true}, opts).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find verified freelancer: %w", err)
	}
	return &f, nil
}

// LoadCatalog reads freelancers, profiles and projects, each capped at limit.
func (s *MongoStore) LoadCatalog(ctx context.Context, limit int) (*models.Catalog, error) {
	freelancers, err := s.ListFreelancers(ctx, limit)
	if err != nil {
		return nil, err
	}

	var profiles []models.Profile
	if err := s.findAll(ctx, CollectionProfiles, limit, &profiles); err != nil {
		return nil, fmt.Errorf("store: load profiles: %w", err)
	}

	var projects []models.Project
	if err := s.findAll(ctx, CollectionProjects, limit, &projects); err != nil {
		return nil, fmt.Errorf("store: load projects: %w", err)
	}

	return &models.Catalog{Freelancers: freelancers, Profiles: profiles, Projects: projects}, nil
}

func (s *MongoStore) findFreelancers(ctx context.Context, filter bson.M, limit int) ([]models.Freelancer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "is_verified", Value: -1}, {Key: "rating", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection(CollectionFreelancers).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: find freelancers: %w", err)
	}
	defer cursor.Close(ctx)

	var freelancers []models.Freelancer
	if err := cursor.All(ctx, &freelancers); err != nil {
		return nil, fmt.Errorf("store: decode freelancers: %w", err)
	}
	return freelancers, nil
}

func (s *MongoStore) findAll(ctx context.Context, name string, limit int, out interface{}) error {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection(name).Find(ctx, bson.M{}, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}
