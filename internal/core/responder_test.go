package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoelite.com/storefront/internal/metrics"
	"autoelite.com/storefront/internal/store"
)

func strPtr(s string) *string { return &s }

func amarok() *store.Vehicle {
	return &store.Vehicle{
		ID:           "amarok",
		Brand:        "Volkswagen",
		Model:        "Amarok",
		Year:         2024,
		Price:        289900,
		Mileage:      12000,
		Fuel:         store.FuelDiesel,
		Transmission: store.TransmissionAutomatic,
		Color:        "Preto",
		Engine:       strPtr("3.0 V6"),
		Features:     []string{"Tração 4x4", "Câmera de ré"},
		Status:       store.VehicleAvailable,
	}
}

func TestResponderDegradedMode(t *testing.T) {
	m := metrics.New()
	r := NewResponder(ResponderConfig{Metrics: m, Logger: zerolog.Nop()})
	require.True(t, r.Degraded())

	for _, name := range []string{"Carlos", "Ana Paula"} {
		reply, err := r.Invoke(context.Background(), AssistantRequest{Message: "Olá", CustomerName: name})
		require.NoError(t, err)
		assert.True(t, reply.TransferToSeller)
		assert.Equal(t, fmt.Sprintf("Obrigado pela mensagem, %s! Um de nossos vendedores entrará em contato em breve.", name), reply.Message)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AssistantReplies.WithLabelValues(ModeDegraded)))
}

func TestResponderLiveReply(t *testing.T) {
	c := &fakeCompleter{text: "  O financiamento pode ser feito em até 60x.  "}
	r := NewResponder(ResponderConfig{Completer: c, Logger: zerolog.Nop()})
	require.False(t, r.Degraded())

	reply := r.Respond(context.Background(), AssistantRequest{Message: "Quero financiar", CustomerName: "Carlos"})
	assert.Equal(t, AssistantReply{Message: "O financiamento pode ser feito em até 60x."}, reply)
	assert.Equal(t, assistantSystemPrompt, c.system)
	assert.Equal(t, "Quero financiar", c.user)
}

func TestResponderUpstreamFailureEscalates(t *testing.T) {
	for _, err := range []error{ErrUpstreamUnavailable, ErrUpstreamStatus, context.DeadlineExceeded} {
		t.Run(err.Error(), func(t *testing.T) {
			r := NewResponder(ResponderConfig{Completer: &fakeCompleter{err: fmt.Errorf("wrapped: %w", err)}, Logger: zerolog.Nop()})
			reply := r.Respond(context.Background(), AssistantRequest{Message: "Olá"})
			assert.Equal(t, AssistantReply{Message: upstreamFailureReply, TransferToSeller: true}, reply)
		})
	}
}

func TestResponderMalformedOrEmptyDoesNotEscalate(t *testing.T) {
	cases := map[string]*fakeCompleter{
		"malformed": {err: fmt.Errorf("%w: no choices", ErrMalformedUpstreamResponse)},
		"empty":     {text: ""},
		"blank":     {text: "  \n "},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewResponder(ResponderConfig{Completer: c, Logger: zerolog.Nop()})
			reply := r.Respond(context.Background(), AssistantRequest{Message: "Olá"})
			assert.Equal(t, AssistantReply{Message: "Como posso ajudá-lo?"}, reply)
		})
	}
}

func TestResponderAddsVehicleContext(t *testing.T) {
	c := &fakeCompleter{text: "ok"}
	r := NewResponder(ResponderConfig{
		Completer: c,
		Vehicles:  fakeVehicles{"amarok": amarok()},
		Logger:    zerolog.Nop(),
	})

	r.Respond(context.Background(), AssistantRequest{Message: "Tem 4x4?", VehicleID: "amarok", CustomerName: "Carlos"})
	assert.Contains(t, c.user, "Veículo de interesse do cliente Carlos")
	assert.Contains(t, c.user, "Modelo: Volkswagen Amarok 2024")
	assert.Contains(t, c.user, "Combustível: Diesel")
	assert.Contains(t, c.user, "Câmbio: Automático")
	assert.Contains(t, c.user, "Motor: 3.0 V6")
	assert.Contains(t, c.user, "Itens: Tração 4x4, Câmera de ré")
	assert.Contains(t, c.user, "Mensagem do cliente: Tem 4x4?")

	// Unknown or unloadable vehicles fall back to the bare message.
	for _, id := range []string{"missing", "broken"} {
		r.Respond(context.Background(), AssistantRequest{Message: "Olá", VehicleID: id})
		assert.Equal(t, "Olá", c.user)
	}
}

type slowCompleter struct{}

func (slowCompleter) Complete(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
}

func TestResponderAppliesTimeout(t *testing.T) {
	r := NewResponder(ResponderConfig{Completer: slowCompleter{}, Timeout: 20 * time.Millisecond, Logger: zerolog.Nop()})

	start := time.Now()
	reply := r.Respond(context.Background(), AssistantRequest{Message: "Olá"})
	assert.True(t, reply.TransferToSeller)
	assert.Less(t, time.Since(start), 5*time.Second)
}
