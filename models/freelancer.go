package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Freelancer struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Name        string             `bson:"name" json:"name"`
	Phone       string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Category    string             `bson:"category" json:"category"`
	Skills      []string           `bson:"skills,omitempty" json:"skills,omitempty"`
	Bio         string             `bson:"bio,omitempty" json:"bio,omitempty"`
	HourlyRate  float64            `bson:"hourly_rate,omitempty" json:"hourly_rate,omitempty"`
	Rating      float64            `bson:"rating,omitempty" json:"rating,omitempty"`
	IsVerified  bool               `bson:"is_verified" json:"is_verified"`
	IsAvailable bool               `bson:"is_available" json:"is_available"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// Snapshot copies the fields kept with a pending payment.
func (f Freelancer) Snapshot() FreelancerSnapshot {
	return FreelancerSnapshot{
		ID:       f.ID.Hex(),
		UserID:   f.UserID,
		Name:     f.Name,
		Phone:    f.Phone,
		Category: f.Category,
	}
}

// FreelancerSnapshot is the freelancer as it was when a payment link was issued.
type FreelancerSnapshot struct {
	ID       string `bson:"id" json:"id"`
	UserID   string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Name     string `bson:"name" json:"name"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
	Category string `bson:"category,omitempty" json:"category,omitempty"`
}

type Profile struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FreelancerID string             `bson:"freelancer_id" json:"freelancer_id"`
	Title        string             `bson:"title,omitempty" json:"title,omitempty"`
	Summary      string             `bson:"summary,omitempty" json:"summary,omitempty"`
	Languages    []string           `bson:"languages,omitempty" json:"languages,omitempty"`
	Location     string             `bson:"location,omitempty" json:"location,omitempty"`
}

type Project struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FreelancerID string             `bson:"freelancer_id" json:"freelancer_id"`
	Title        string             `bson:"title" json:"title"`
	Description  string             `bson:"description,omitempty" json:"description,omitempty"`
	Category     string             `bson:"category,omitempty" json:"category,omitempty"`
	URL          string             `bson:"url,omitempty" json:"url,omitempty"`
}

// Catalog is the reference dataset handed to the NLU for recommendations.
type Catalog struct {
	Freelancers []Freelancer `json:"freelancers"`
	Profiles    []Profile    `json:"profiles"`
	Projects    []Project    `json:"projects"`
}
