package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"pod2tube/internal/models"
)

// BotSender sends messages. It's implemented by *tgbotapi.BotAPI.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

const recentJobsLimit = 5

// StartTelegramBot handles bot commands until ctx is done.
func (h *Handlers) StartTelegramBot(ctx context.Context, bot *tgbotapi.BotAPI) {
	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil { // ignore any non-Message updates
				continue
			}
			h.HandleTelegramMessage(ctx, bot, update.Message)
		}
	}
}

// HandleTelegramMessage answers one incoming message.
func (h *Handlers) HandleTelegramMessage(ctx context.Context, bot BotSender, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	log.Printf("[%s] %s", message.From.UserName, message.Text)

	if !message.IsCommand() {
		reply(bot, message.Chat.ID, "Send /scan to check for new episodes or /jobs to list recent conversions.")
		return
	}

	user, err := h.store.UpsertUser(ctx, message.From.ID, message.From.UserName)
	if err != nil {
		log.Printf("Error finding or creating user: %v", err)
		reply(bot, message.Chat.ID, "Error creating user.")
		return
	}

	switch message.Command() {
	case "start", "help":
		text := "Send /scan to check for new episodes or /jobs to list recent conversions."
		if h.baseURL != "" {
			text += "\nYour feed of published videos: " + user.FeedURL(h.baseURL)
		}
		reply(bot, message.Chat.ID, text)
	case "scan":
		msg, _, err := h.manualScan(ctx, user.ID)
		if err != nil {
			log.Printf("Error running manual scan: %v", err)
			msg = "Internal server error"
		}
		reply(bot, message.Chat.ID, msg)
	case "jobs":
		h.handleJobsCommand(ctx, bot, message, user)
	default:
		reply(bot, message.Chat.ID, "I don't know that command")
	}
}

func (h *Handlers) handleJobsCommand(ctx context.Context, bot BotSender, message *tgbotapi.Message, user *models.User) {
	jobs, err := h.store.ListJobsByUserID(ctx, user.ID, "", recentJobsLimit)
	if err != nil {
		log.Printf("Error listing jobs: %v", err)
		reply(bot, message.Chat.ID, "Internal server error")
		return
	}
	if len(jobs) == 0 {
		reply(bot, message.Chat.ID, "No conversions yet.")
		return
	}

	var b strings.Builder
	for _, job := range jobs {
		fmt.Fprintf(&b, "%s: %s", job.Status, job.EpisodeTitle)
		switch job.Status {
		case models.JobStatusCompleted:
			fmt.Fprintf(&b, " %s", job.YoutubeVideoURL)
		case models.JobStatusFailed:
			fmt.Fprintf(&b, " (%s)", job.ErrorMessage)
		}
		b.WriteString("\n")
	}
	reply(bot, message.Chat.ID, strings.TrimSpace(b.String()))
}

func reply(bot BotSender, chatID int64, text string) {
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("Error sending message to chat %d: %v", chatID, err)
	}
}
