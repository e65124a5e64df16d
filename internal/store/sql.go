package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore persists vehicles, conversations, messages and console users in
// either SQLite or Postgres. Queries are written with '?' placeholders and
// rebound for Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(driver, dataSourceName string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer; keep the pool from racing itself.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, driver: driver}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) initSchema() error {
	timestamp := "DATETIME"
	if s.driver == DriverPostgres {
		timestamp = "TIMESTAMPTZ"
	}
	schema := []string{`
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('admin', 'seller')),
        created_at ` + timestamp + ` NOT NULL
    )`, `
    CREATE TABLE IF NOT EXISTS vehicles (
        id TEXT PRIMARY KEY, -- UUID
        brand TEXT NOT NULL,
        model TEXT NOT NULL,
        year INTEGER NOT NULL,
        price DOUBLE PRECISION NOT NULL,
        mileage INTEGER NOT NULL DEFAULT 0,
        fuel TEXT NOT NULL CHECK (fuel IN ('gasoline', 'diesel', 'flex', 'electric', 'hybrid')),
        transmission TEXT NOT NULL CHECK (transmission IN ('manual', 'automatic')),
        color TEXT NOT NULL,
        description TEXT,
        engine TEXT,
        power TEXT,
        features_json TEXT, -- JSON array of strings
        status TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'reserved', 'sold')),
        main_image TEXT,
        images_json TEXT, -- JSON array of strings
        created_by TEXT,
        created_at ` + timestamp + ` NOT NULL,
        updated_at ` + timestamp + ` NOT NULL
    )`, `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        vehicle_id TEXT NOT NULL,
        customer_name TEXT NOT NULL,
        customer_phone TEXT NOT NULL,
        customer_email TEXT,
        status TEXT NOT NULL CHECK (status IN ('ai_handling', 'waiting_seller', 'closed')),
        created_at ` + timestamp + ` NOT NULL,
        updated_at ` + timestamp + ` NOT NULL
    )`, `
    CREATE TABLE IF NOT EXISTS conversation_messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        sender_type TEXT NOT NULL CHECK (sender_type IN ('customer', 'ai')),
        content TEXT NOT NULL,
        unanswered BOOLEAN NOT NULL DEFAULT FALSE,
        created_at ` + timestamp + ` NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    )`,
		`CREATE INDEX IF NOT EXISTS idx_vehicles_status ON vehicles (status, created_at)`,
		`DROP INDEX IF EXISTS idx_messages_conversation`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_seq ON conversation_messages (conversation_id, seq)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// User methods
func (s *SQLStore) CreateUser(ctx context.Context, email, passwordHash string, role UserRole) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind("INSERT INTO users (id, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)"),
		user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, email, password_hash, role, created_at FROM users WHERE email = ?"),
		strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, email, password_hash, role, created_at FROM users WHERE id = ?"), id).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Vehicle methods
const vehicleColumns = "id, brand, model, year, price, mileage, fuel, transmission, color, description, engine, power, features_json, status, main_image, images_json, created_by, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (*Vehicle, error) {
	var (
		v                                     Vehicle
		description, engine, power, mainImage sql.NullString
		featuresJSON, imagesJSON, createdBy   sql.NullString
	)
	err := row.Scan(&v.ID, &v.Brand, &v.Model, &v.Year, &v.Price, &v.Mileage, &v.Fuel, &v.Transmission, &v.Color,
		&description, &engine, &power, &featuresJSON, &v.Status, &mainImage, &imagesJSON, &createdBy, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Description = nullableString(description)
	v.Engine = nullableString(engine)
	v.Power = nullableString(power)
	v.MainImage = nullableString(mainImage)
	v.CreatedBy = nullableString(createdBy)
	if v.Features, err = decodeStringList(featuresJSON); err != nil {
		return nil, fmt.Errorf("failed to decode features for vehicle %s: %w", v.ID, err)
	}
	if v.Images, err = decodeStringList(imagesJSON); err != nil {
		return nil, fmt.Errorf("failed to decode images for vehicle %s: %w", v.ID, err)
	}
	return &v, nil
}

func (s *SQLStore) CreateVehicle(ctx context.Context, v *Vehicle) error {
	v.ID = uuid.NewString()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	if v.Status == "" {
		v.Status = VehicleAvailable
	}

	featuresJSON, err := encodeStringList(v.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	imagesJSON, err := encodeStringList(v.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind("INSERT INTO vehicles ("+vehicleColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		v.ID, v.Brand, v.Model, v.Year, v.Price, v.Mileage, v.Fuel, v.Transmission, v.Color,
		v.Description, v.Engine, v.Power, featuresJSON, v.Status, v.MainImage, imagesJSON, v.CreatedBy, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute vehicle insert: %w", err)
	}
	return nil
}

// GetVehicle returns nil, nil when no vehicle has the given id.
func (s *SQLStore) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+vehicleColumns+" FROM vehicles WHERE id = ?"), id)
	v, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

// ListVehicles returns vehicles newest first, optionally restricted to one status.
func (s *SQLStore) ListVehicles(ctx context.Context, status *VehicleStatus) ([]Vehicle, error) {
	query := "SELECT " + vehicleColumns + " FROM vehicles"
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := []Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle row: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// UpdateVehicle applies patch and returns the stored row, or ErrNotFound.
func (s *SQLStore) UpdateVehicle(ctx context.Context, id string, patch VehiclePatch) (*Vehicle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin vehicle update: %w", err)
	}
	defer tx.Rollback()

	v, err := scanVehicle(tx.QueryRowContext(ctx, s.rebind("SELECT "+vehicleColumns+" FROM vehicles WHERE id = ?"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load vehicle for update: %w", err)
	}

	patch.Apply(v)
	v.UpdatedAt = time.Now().UTC()

	featuresJSON, err := encodeStringList(v.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}
	imagesJSON, err := encodeStringList(v.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`UPDATE vehicles SET brand = ?, model = ?, year = ?, price = ?, mileage = ?, fuel = ?,
        transmission = ?, color = ?, description = ?, engine = ?, power = ?, features_json = ?, status = ?,
        main_image = ?, images_json = ?, updated_at = ? WHERE id = ?`),
		v.Brand, v.Model, v.Year, v.Price, v.Mileage, v.Fuel, v.Transmission, v.Color, v.Description, v.Engine, v.Power,
		featuresJSON, v.Status, v.MainImage, imagesJSON, v.UpdatedAt, v.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vehicle update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vehicle update: %w", err)
	}
	return v, nil
}

func (s *SQLStore) DeleteVehicle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM vehicles WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to execute vehicle delete: %w", err)
	}
	return checkAffected(res)
}

// Conversation methods
const conversationColumns = "id, vehicle_id, customer_name, customer_phone, customer_email, status, created_at, updated_at"

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var email sql.NullString
	if err := row.Scan(&c.ID, &c.VehicleID, &c.CustomerName, &c.CustomerPhone, &email, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CustomerEmail = nullableString(email)
	return &c, nil
}

// CreateConversation opens a conversation in ai_handling for the given customer.
func (s *SQLStore) CreateConversation(ctx context.Context, in NewConversation) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:            uuid.NewString(),
		VehicleID:     in.VehicleID,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		CustomerEmail: in.CustomerEmail,
		Status:        StatusAIHandling,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx, s.rebind("INSERT INTO conversations ("+conversationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		conv.ID, conv.VehicleID, conv.CustomerName, conv.CustomerPhone, conv.CustomerEmail, conv.Status, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute conversation insert: %w", err)
	}
	return conv, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, s.rebind("SELECT "+conversationColumns+" FROM conversations WHERE id = ?"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLStore) ListConversations(ctx context.Context, status *ConversationStatus) ([]Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations"
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

// SetConversationStatus moves a conversation to status, rejecting moves the
// transition table does not allow with ErrInvalidTransition.
func (s *SQLStore) SetConversationStatus(ctx context.Context, id string, status ConversationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown conversation status %q: %w", status, ErrInvalidTransition)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status update: %w", err)
	}
	defer tx.Rollback()

	var current ConversationStatus
	err = tx.QueryRowContext(ctx, s.rebind("SELECT status FROM conversations WHERE id = ?"), id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read conversation status: %w", err)
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%s -> %s: %w", current, status, ErrInvalidTransition)
	}
	if current == status {
		return nil
	}

	_, err = tx.ExecContext(ctx, s.rebind("UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?"), status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to execute status update: %w", err)
	}
	return tx.Commit()
}

// Message methods

// AppendMessage stores a message at the end of the conversation's log.
func (s *SQLStore) AppendMessage(ctx context.Context, conversationID string, sender SenderRole, content string) (*Message, error) {
	if !sender.Valid() {
		return nil, fmt.Errorf("unknown sender role %q", sender)
	}
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin message insert: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM conversations WHERE id = ?"), conversationID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to verify conversation: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO conversation_messages (id, conversation_id, seq, sender_type, content, unanswered, created_at)
        VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_messages WHERE conversation_id = ?), ?, ?, ?, ?)`),
		msg.ID, msg.ConversationID, msg.ConversationID, msg.Sender, msg.Content, false, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute message insert: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.rebind("UPDATE conversations SET updated_at = ? WHERE id = ?"), msg.CreatedAt, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message insert: %w", err)
	}
	return msg, nil
}

// MarkMessageUnanswered flags a customer message that never received a reply.
func (s *SQLStore) MarkMessageUnanswered(ctx context.Context, messageID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE conversation_messages SET unanswered = ? WHERE id = ?"), true, messageID)
	if err != nil {
		return fmt.Errorf("failed to execute unanswered update: %w", err)
	}
	return checkAffected(res)
}

func (s *SQLStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, conversation_id, sender_type, content, unanswered, created_at
        FROM conversation_messages WHERE conversation_id = ? ORDER BY seq ASC`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.Unanswered, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func encodeStringList(list []string) (*string, error) {
	if list == nil {
		return nil, nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func decodeStringList(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(ns.String), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// checkAffected maps a write that touched no rows to ErrNotFound.
func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
