package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func amarok() *Vehicle {
	return &Vehicle{
		Brand:        "Volkswagen",
		Model:        "Amarok",
		Year:         2024,
		Price:        289900,
		Mileage:      0,
		Fuel:         FuelDiesel,
		Transmission: TransmissionAutomatic,
		Color:        "Prata",
		Engine:       strPtr("3.0 V6"),
		Features:     []string{"4x4", "Multimídia"},
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestNewSQLStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLStore("mysql", "whatever")
	assert.Error(t, err)
}

func TestVehicleCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v := amarok()
	require.NoError(t, s.CreateVehicle(ctx, v))
	require.NotEmpty(t, v.ID)
	assert.Equal(t, VehicleAvailable, v.Status)

	got, err := s.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Amarok", got.Model)
	assert.Equal(t, []string{"4x4", "Multimídia"}, got.Features)
	assert.Nil(t, got.Images)
	require.NotNil(t, got.Engine)
	assert.Equal(t, "3.0 V6", *got.Engine)
	assert.Nil(t, got.Description)

	price := 279900.0
	status := VehicleReserved
	updated, err := s.UpdateVehicle(ctx, v.ID, VehiclePatch{Price: &price, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, price, updated.Price)
	assert.Equal(t, VehicleReserved, updated.Status)
	assert.Equal(t, "Volkswagen", updated.Brand, "untouched fields survive a partial update")

	require.NoError(t, s.DeleteVehicle(ctx, v.ID))
	got, err = s.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, s.DeleteVehicle(ctx, v.ID), ErrNotFound)
	_, err = s.UpdateVehicle(ctx, v.ID, VehiclePatch{Price: &price})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListVehiclesNewestFirstAndByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := amarok()
	require.NoError(t, s.CreateVehicle(ctx, older))
	time.Sleep(2 * time.Millisecond)
	newer := amarok()
	newer.Model = "Saveiro"
	require.NoError(t, s.CreateVehicle(ctx, newer))
	time.Sleep(2 * time.Millisecond)
	sold := amarok()
	sold.Model = "Gol"
	sold.Status = VehicleSold
	require.NoError(t, s.CreateVehicle(ctx, sold))

	all, err := s.ListVehicles(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Gol", "Saveiro", "Amarok"}, []string{all[0].Model, all[1].Model, all[2].Model})

	available := VehicleAvailable
	avail, err := s.ListVehicles(ctx, &available)
	require.NoError(t, err)
	require.Len(t, avail, 2)
	assert.Equal(t, "Saveiro", avail[0].Model)
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, NewConversation{
		VehicleID:     "v1",
		CustomerName:  "Carlos",
		CustomerPhone: "11988887777",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusAIHandling, conv.Status)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.CustomerEmail)
	assert.Equal(t, "Carlos", got.CustomerName)

	require.NoError(t, s.SetConversationStatus(ctx, conv.ID, StatusWaitingSeller))
	require.NoError(t, s.SetConversationStatus(ctx, conv.ID, StatusWaitingSeller), "same-state move is a no-op")

	err = s.SetConversationStatus(ctx, conv.ID, StatusAIHandling)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.SetConversationStatus(ctx, conv.ID, StatusClosed))
	assert.ErrorIs(t, s.SetConversationStatus(ctx, conv.ID, StatusWaitingSeller), ErrInvalidTransition)

	assert.ErrorIs(t, s.SetConversationStatus(ctx, "missing", StatusClosed), ErrNotFound)
	assert.ErrorIs(t, s.SetConversationStatus(ctx, conv.ID, ConversationStatus("resolved")), ErrInvalidTransition)

	closed := StatusClosed
	list, err := s.ListConversations(ctx, &closed)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)
}

func TestMessagesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	email := "carlos@example.com"
	conv, err := s.CreateConversation(ctx, NewConversation{VehicleID: "v1", CustomerName: "Carlos", CustomerPhone: "1", CustomerEmail: &email})
	require.NoError(t, err)

	contents := []string{"oi", "Olá!", "Quero financiar", "Claro"}
	var ids []string
	for i, c := range contents {
		sender := SenderCustomer
		if i%2 == 1 {
			sender = SenderAI
		}
		msg, err := s.AppendMessage(ctx, conv.ID, sender, c)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	require.NoError(t, s.MarkMessageUnanswered(ctx, ids[2]))
	assert.ErrorIs(t, s.MarkMessageUnanswered(ctx, "missing"), ErrNotFound)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, contents[i], m.Content)
		assert.Equal(t, ids[i], m.ID)
		assert.Equal(t, i == 2, m.Unanswered)
	}
	assert.Equal(t, SenderAI, msgs[1].Sender)
}

func TestMessageSeqUniquePerConversation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seq.db")
	s, err := NewSQLStore(DriverSQLite, path)
	require.NoError(t, err)

	conv, err := s.CreateConversation(ctx, NewConversation{VehicleID: "v1", CustomerName: "A", CustomerPhone: "1"})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, SenderCustomer, "oi")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Migrations run again on an existing database.
	s, err = NewSQLStore(DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	insert := `INSERT INTO conversation_messages (id, conversation_id, seq, sender_type, content, unanswered, created_at)
        VALUES (?, ?, ?, 'ai', 'duplicado', FALSE, ?)`
	_, err = s.db.ExecContext(ctx, insert, "dup", conv.ID, 1, time.Now().UTC())
	assert.Error(t, err, "a second row with the same seq is rejected")

	other, err := s.CreateConversation(ctx, NewConversation{VehicleID: "v1", CustomerName: "B", CustomerPhone: "2"})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, insert, "other-1", other.ID, 1, time.Now().UTC())
	assert.NoError(t, err, "seq restarts per conversation")

	msg, err := s.AppendMessage(ctx, conv.ID, SenderAI, "Olá!")
	require.NoError(t, err)
	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[1].ID)
}

type fakeResult struct {
	affected int64
	err      error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, r.err }

func TestCheckAffected(t *testing.T) {
	assert.NoError(t, checkAffected(fakeResult{affected: 1}))
	assert.ErrorIs(t, checkAffected(fakeResult{}), ErrNotFound)

	errUnsupported := errors.New("rows affected unsupported")
	err := checkAffected(fakeResult{err: errUnsupported})
	assert.ErrorIs(t, err, errUnsupported)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestAppendMessageValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.AppendMessage(ctx, "missing", SenderCustomer, "oi")
	assert.ErrorIs(t, err, ErrNotFound)

	conv, err := s.CreateConversation(ctx, NewConversation{VehicleID: "v1", CustomerName: "A", CustomerPhone: "1"})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, SenderRole("seller"), "oi")
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.CreateUser(ctx, " Admin@AutoElite.com ", "hash", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "admin@autoelite.com", u.Email)

	got, err := s.GetUserByEmail(ctx, "ADMIN@autoelite.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, RoleAdmin, got.Role)

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)

	missing, err := s.GetUserByEmail(ctx, "nobody@autoelite.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.CreateUser(ctx, "admin@autoelite.com", "hash", RoleSeller)
	assert.Error(t, err, "emails are unique")
}

func TestStatusTransitionTable(t *testing.T) {
	assert.True(t, StatusAIHandling.CanTransitionTo(StatusWaitingSeller))
	assert.True(t, StatusAIHandling.CanTransitionTo(StatusClosed))
	assert.True(t, StatusWaitingSeller.CanTransitionTo(StatusClosed))
	assert.True(t, StatusWaitingSeller.CanTransitionTo(StatusWaitingSeller))
	assert.False(t, StatusWaitingSeller.CanTransitionTo(StatusAIHandling))
	assert.False(t, StatusClosed.CanTransitionTo(StatusAIHandling))
	assert.False(t, StatusClosed.CanTransitionTo(StatusWaitingSeller))
	assert.False(t, ConversationStatus("resolved").CanTransitionTo(ConversationStatus("resolved")))
}

func TestVehiclePatchAndDisplayName(t *testing.T) {
	v := amarok()
	assert.Equal(t, "Volkswagen Amarok 2024", v.DisplayName())

	features := []string{"Teto solar"}
	VehiclePatch{Features: &features, Description: strPtr("Única dona")}.Apply(v)
	assert.Equal(t, features, v.Features)
	assert.Equal(t, "Única dona", *v.Description)
	assert.Equal(t, "Amarok", v.Model)
}

func TestLoadVehicleSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vehicles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`vehicles:
  - brand: Volkswagen
    model: Amarok
    year: 2024
    price: 289900
    mileage: 0
    fuel: diesel
    transmission: automatic
    color: Prata
    features: [4x4, Multimídia]
  - brand: Toyota
    model: Corolla
    year: 2023
    price: 149900
    mileage: 12000
    fuel: hybrid
    transmission: automatic
    color: Branco
    status: reserved
`), 0o644))

	vehicles, err := LoadVehicleSeed(path)
	require.NoError(t, err)
	require.Len(t, vehicles, 2)
	assert.Equal(t, FuelDiesel, vehicles[0].Fuel)
	assert.Equal(t, []string{"4x4", "Multimídia"}, vehicles[0].Features)
	assert.Equal(t, VehicleReserved, vehicles[1].Status)

	_, err = LoadVehicleSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
