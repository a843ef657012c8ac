package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// testSessionKey is used by the text test endpoint when no session is named.
const testSessionKey = "test-session"

// Conversation is the voice orchestrator as seen by the transport.
type Conversation interface {
	Process(ctx context.Context, sessionKey, utterance string) string
	Greeting() string
	Goodbye() string
}

// VoiceWebhook answers Twilio's speech gather callbacks with TwiML.
func (h *Handlers) VoiceWebhook(c *fiber.Ctx) error {
	speech := strings.TrimSpace(c.FormValue("SpeechResult"))
	callSid := c.FormValue("CallSid")

	reply := h.conv.Greeting()
	if speech != "" {
		h.logger.Debug().Str("call_sid", callSid).Str("speech", speech).Msg("received speech")
		reply = h.conv.Process(c.UserContext(), callSid, speech)
	}

	doc, err := gatherTwiML(reply, h.conv.Goodbye())
	if err != nil {
		h.logger.Error().Err(err).Str("call_sid", callSid).Msg("failed to render TwiML")
		if doc, err = hangupTwiML(webhookErrorReply); err != nil {
			return err
		}
	}
	return sendTwiML(c, doc)
}

type testAIRequest struct {
	Speech    string `json:"speech"`
	SessionID string `json:"session_id"`
}

type testAIResponse struct {
	Speech    string `json:"speech"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// VoiceTestAI runs the same orchestrator over plain JSON.
func (h *Handlers) VoiceTestAI(c *fiber.Ctx) error {
	var req testAIRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.Speech) == "" {
		return badRequest(c, "No speech provided")
	}
	key := req.SessionID
	if key == "" {
		key = testSessionKey
	}

	reply := h.conv.Process(c.UserContext(), key, req.Speech)
	return c.JSON(testAIResponse{
		Speech:    req.Speech,
		Response:  reply,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}
