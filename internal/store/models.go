package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid conversation status transition")
)

type ConversationStatus string

const (
	StatusAIHandling    ConversationStatus = "ai_handling"
	StatusWaitingSeller ConversationStatus = "waiting_seller"
	StatusClosed        ConversationStatus = "closed"
)

// conversationTransitions lists the allowed forward moves for each status.
// Escalation is one-way: nothing leads back to ai_handling.
var conversationTransitions = map[ConversationStatus][]ConversationStatus{
	StatusAIHandling:    {StatusWaitingSeller, StatusClosed},
	StatusWaitingSeller: {StatusClosed},
	StatusClosed:        nil,
}

func (s ConversationStatus) Valid() bool {
	_, ok := conversationTransitions[s]
	return ok
}

// CanTransitionTo reports whether a conversation in status s may move to next.
// Same-state moves are allowed and treated as no-ops.
func (s ConversationStatus) CanTransitionTo(next ConversationStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range conversationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type SenderRole string

const (
	SenderCustomer SenderRole = "customer"
	SenderAI       SenderRole = "ai"
)

func (r SenderRole) Valid() bool {
	return r == SenderCustomer || r == SenderAI
}

type Conversation struct {
	ID            string             `json:"id"` // UUID
	VehicleID     string             `json:"vehicle_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone"`
	CustomerEmail *string            `json:"customer_email"` // Nullable
	Status        ConversationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type NewConversation struct {
	VehicleID     string
	CustomerName  string
	CustomerPhone string
	CustomerEmail *string
}

type Message struct {
	ID             string     `json:"id"` // UUID
	ConversationID string     `json:"conversation_id"`
	Sender         SenderRole `json:"sender_type"`
	Content        string     `json:"content"`
	Unanswered     bool       `json:"unanswered"`
	CreatedAt      time.Time  `json:"created_at"`
}

type FuelType string

const (
	FuelGasoline FuelType = "gasoline"
	FuelDiesel   FuelType = "diesel"
	FuelFlex     FuelType = "flex"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
)

var FuelLabels = map[FuelType]string{
	FuelGasoline: "Gasolina",
	FuelDiesel:   "Diesel",
	FuelFlex:     "Flex",
	FuelElectric: "Elétrico",
	FuelHybrid:   "Híbrido",
}

type TransmissionType string

const (
	TransmissionManual    TransmissionType = "manual"
	TransmissionAutomatic TransmissionType = "automatic"
)

var TransmissionLabels = map[TransmissionType]string{
	TransmissionManual:    "Manual",
	TransmissionAutomatic: "Automático",
}

type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleReserved  VehicleStatus = "reserved"
	VehicleSold      VehicleStatus = "sold"
)

var VehicleStatusLabels = map[VehicleStatus]string{
	VehicleAvailable: "Disponível",
	VehicleReserved:  "Reservado",
	VehicleSold:      "Vendido",
}

type Vehicle struct {
	ID           string           `json:"id" yaml:"id,omitempty"`
	Brand        string           `json:"brand" yaml:"brand"`
	Model        string           `json:"model" yaml:"model"`
	Year         int              `json:"year" yaml:"year"`
	Price        float64          `json:"price" yaml:"price"`
	Mileage      int              `json:"mileage" yaml:"mileage"`
	Fuel         FuelType         `json:"fuel" yaml:"fuel"`
	Transmission TransmissionType `json:"transmission" yaml:"transmission"`
	Color        string           `json:"color" yaml:"color"`
	Description  *string          `json:"description" yaml:"description,omitempty"`
	Engine       *string          `json:"engine" yaml:"engine,omitempty"`
	Power        *string          `json:"power" yaml:"power,omitempty"`
	Features     []string         `json:"features" yaml:"features,omitempty"`
	Status       VehicleStatus    `json:"status" yaml:"status,omitempty"`
	MainImage    *string          `json:"main_image" yaml:"main_image,omitempty"`
	Images       []string         `json:"images" yaml:"images,omitempty"`
	CreatedBy    *string          `json:"created_by" yaml:"-"`
	CreatedAt    time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time        `json:"updated_at" yaml:"-"`
}

func (v *Vehicle) DisplayName() string {
	return fmt.Sprintf("%s %s %d", v.Brand, v.Model, v.Year)
}

// VehiclePatch carries a partial update; nil fields are left untouched.
type VehiclePatch struct {
	Brand        *string           `json:"brand,omitempty"`
	Model        *string           `json:"model,omitempty"`
	Year         *int              `json:"year,omitempty"`
	Price        *float64          `json:"price,omitempty"`
	Mileage      *int              `json:"mileage,omitempty"`
	Fuel         *FuelType         `json:"fuel,omitempty"`
	Transmission *TransmissionType `json:"transmission,omitempty"`
	Color        *string           `json:"color,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Engine       *string           `json:"engine,omitempty"`
	Power        *string           `json:"power,omitempty"`
	Features     *[]string         `json:"features,omitempty"`
	Status       *VehicleStatus    `json:"status,omitempty"`
	MainImage    *string           `json:"main_image,omitempty"`
	Images       *[]string         `json:"images,omitempty"`
}

// Apply copies every set field of p onto v.
func (p VehiclePatch) Apply(v *Vehicle) {
	if p.Brand != nil {
		v.Brand = *p.Brand
	}
	if p.Model != nil {
		v.Model = *p.Model
	}
	if p.Year != nil {
		v.Year = *p.Year
	}
	if p.Price != nil {
		v.Price = *p.Price
	}
	if p.Mileage != nil {
		v.Mileage = *p.Mileage
	}
	if p.Fuel != nil {
		v.Fuel = *p.Fuel
	}
	if p.Transmission != nil {
		v.Transmission = *p.Transmission
	}
	if p.Color != nil {
		v.Color = *p.Color
	}
	if p.Description != nil {
		v.Description = p.Description
	}
	if p.Engine != nil {
		v.Engine = p.Engine
	}
	if p.Power != nil {
		v.Power = p.Power
	}
	if p.Features != nil {
		v.Features = *p.Features
	}
	if p.Status != nil {
		v.Status = *p.Status
	}
	if p.MainImage != nil {
		v.MainImage = p.MainImage
	}
	if p.Images != nil {
		v.Images = *p.Images
	}
}

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleSeller UserRole = "seller"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
