// Package notify tells job owners about finished conversions.
package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"pod2tube/internal/models"
)

// Sender sends messages. It's implemented by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram messages the owner of a job in their private chat with the bot,
// whose id equals the Telegram user id.
type Telegram struct {
	sender Sender
}

func NewTelegram(sender Sender) *Telegram {
	return &Telegram{sender: sender}
}

// JobFinished sends the outcome of job. Send failures are only logged.
func (t *Telegram) JobFinished(ctx context.Context, job *models.ConversionJob) {
	text := Message(job)
	if text == "" {
		return
	}
	if _, err := t.sender.Send(tgbotapi.NewMessage(job.UserID, text)); err != nil {
		log.Printf("Failed to notify user %d about job %d: %v", job.UserID, job.ID, err)
	}
}

// Message renders the notification text for a finished job.
func Message(job *models.ConversionJob) string {
	switch job.Status {
	case models.JobStatusCompleted:
		return fmt.Sprintf("Published %q: %s", job.EpisodeTitle, job.YoutubeVideoURL)
	case models.JobStatusFailed:
		return fmt.Sprintf("Failed to publish %q: %s", job.EpisodeTitle, job.ErrorMessage)
	default:
		return ""
	}
}
