package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

const (
	webhookPath       = "/api/voice/webhook"
	gatherTimeoutSecs = "10"
	webhookErrorReply = "Sorry, I encountered an error. Please try again later."
)

// twilioSignature rejects webhook calls whose X-Twilio-Signature does not
// match. publicBaseURL is the externally visible scheme and host Twilio
// signed against; when empty the request's own base URL is used.
func twilioSignature(authToken, publicBaseURL string, logger zerolog.Logger) fiber.Handler {
	validator := client.NewRequestValidator(authToken)
	return func(c *fiber.Ctx) error {
		base := publicBaseURL
		if base == "" {
			base = c.BaseURL()
		}
		url := base + c.OriginalURL()

		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			params[string(k)] = string(v)
		})

		if !validator.Validate(url, params, c.Get("X-Twilio-Signature")) {
			logger.Warn().Str("url", url).Msg("rejected webhook with bad Twilio signature")
			return problemResponse(c, fiber.StatusForbidden,
				"invalid_signature", "Forbidden", "Twilio signature mismatch")
		}
		return c.Next()
	}
}

// gatherTwiML speaks reply, listens for the next utterance and, if the caller
// says nothing, signs off.
func gatherTwiML(reply, goodbye string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: reply},
		&twiml.VoiceGather{
			Input:         "speech",
			Timeout:       gatherTimeoutSecs,
			SpeechTimeout: "auto",
			Action:        webhookPath,
			Method:        fiber.MethodPost,
		},
		&twiml.VoiceSay{Message: goodbye},
		&twiml.VoiceHangup{},
	})
}

// hangupTwiML speaks a final message and ends the call.
func hangupTwiML(message string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: message},
		&twiml.VoiceHangup{},
	})
}

func sendTwiML(c *fiber.Ctx, doc string) error {
	c.Set(fiber.HeaderContentType, "text/xml")
	return c.SendString(doc)
}
