package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"autoelite.com/storefront/internal/metrics"
	"autoelite.com/storefront/internal/store"
)

// AssistantRequest is the wire shape of the chat-assistant function.
type AssistantRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	VehicleID      string `json:"vehicleId"`
	CustomerName   string `json:"customerName"`
}

type AssistantReply struct {
	Message          string `json:"message"`
	TransferToSeller bool   `json:"transferToSeller"`
}

// AssistantInvoker produces the assistant's side of one exchange.
type AssistantInvoker interface {
	Invoke(ctx context.Context, req AssistantRequest) (AssistantReply, error)
}

// Completer sends one system+user prompt pair to a language model.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

type VehicleLookup interface {
	GetVehicle(ctx context.Context, id string) (*store.Vehicle, error)
}

const (
	ModeLive      = "live"
	ModeDegraded  = "degraded"
	ModeFallback  = "fallback"
	ModeMalformed = "malformed"
)

type ResponderConfig struct {
	// Completer is nil when no completion credential is configured.
	Completer Completer
	// Vehicles is optional; when set the vehicle under discussion is added
	// to the prompt.
	Vehicles VehicleLookup
	Timeout  time.Duration
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Responder answers customer messages. It never fails: every upstream
// problem becomes a canned reply, escalating to a seller where appropriate.
type Responder struct {
	completer Completer
	vehicles  VehicleLookup
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewResponder(cfg ResponderConfig) *Responder {
	return &Responder{
		completer: cfg.Completer,
		vehicles:  cfg.Vehicles,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
	}
}

func (r *Responder) Degraded() bool {
	return r.completer == nil
}

func (r *Responder) Invoke(ctx context.Context, req AssistantRequest) (AssistantReply, error) {
	return r.Respond(ctx, req), nil
}

func (r *Responder) Respond(ctx context.Context, req AssistantRequest) AssistantReply {
	start := time.Now()
	reply, mode := r.respond(ctx, req)
	if r.metrics != nil {
		r.metrics.RecordAssistantReply(mode, time.Since(start))
	}
	r.log.Debug().
		Str("conversation_id", req.ConversationID).
		Str("mode", mode).
		Bool("transfer_to_seller", reply.TransferToSeller).
		Dur("duration", time.Since(start)).
		Msg("assistant replied")
	return reply
}

func (r *Responder) respond(ctx context.Context, req AssistantRequest) (AssistantReply, string) {
	if r.completer == nil {
		return AssistantReply{Message: degradedReply(req.CustomerName), TransferToSeller: true}, ModeDegraded
	}

	if r.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
	}

	text, err := r.completer.Complete(ctx, assistantSystemPrompt, r.buildUserContent(ctx, req))
	switch {
	case errors.Is(err, ErrMalformedUpstreamResponse):
		r.log.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("completion response had an unexpected shape")
		return AssistantReply{Message: emptyCompletionReply}, ModeMalformed
	case err != nil:
		r.log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("completion request failed, handing over to a seller")
		return AssistantReply{Message: upstreamFailureReply, TransferToSeller: true}, ModeFallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return AssistantReply{Message: emptyCompletionReply}, ModeMalformed
	}
	return AssistantReply{Message: text}, ModeLive
}

// buildUserContent prefixes the customer's message with the vehicle they
// are asking about, when it can be found.
func (r *Responder) buildUserContent(ctx context.Context, req AssistantRequest) string {
	if r.vehicles == nil || req.VehicleID == "" {
		return req.Message
	}
	v, err := r.vehicles.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		r.log.Warn().Err(err).Str("vehicle_id", req.VehicleID).Msg("could not load vehicle context, proceeding without it")
		return req.Message
	}
	if v == nil {
		return req.Message
	}
	return fmt.Sprintf("Veículo de interesse do cliente %s:\n\n--- VEÍCULO ---\n%s\n--- FIM ---\n\nMensagem do cliente: %s",
		req.CustomerName, describeVehicle(v), req.Message)
}

func describeVehicle(v *store.Vehicle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Modelo: %s\n", v.DisplayName())
	fmt.Fprintf(&b, "Preço: R$ %.2f\n", v.Price)
	fmt.Fprintf(&b, "Quilometragem: %d km\n", v.Mileage)
	fmt.Fprintf(&b, "Combustível: %s\n", labelOr(store.FuelLabels[v.Fuel], string(v.Fuel)))
	fmt.Fprintf(&b, "Câmbio: %s\n", labelOr(store.TransmissionLabels[v.Transmission], string(v.Transmission)))
	fmt.Fprintf(&b, "Cor: %s\n", v.Color)
	fmt.Fprintf(&b, "Situação: %s", labelOr(store.VehicleStatusLabels[v.Status], string(v.Status)))
	if v.Engine != nil {
		fmt.Fprintf(&b, "\nMotor: %s", *v.Engine)
	}
	if v.Power != nil {
		fmt.Fprintf(&b, "\nPotência: %s", *v.Power)
	}
	if len(v.Features) > 0 {
		fmt.Fprintf(&b, "\nItens: %s", strings.Join(v.Features, ", "))
	}
	return b.String()
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
