package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/vote"

	"gopkg.in/telebot.v3"
	"gorm.io/gorm"
)

// BotHandler holds the bot instance and configuration
type BotHandler struct {
	Bot     *telebot.Bot
	SiteURL string // public URL of the server listing

	db    *gorm.DB
	votes *vote.Service
}

// NewBotHandler initializes and returns a new BotHandler
func NewBotHandler(token, siteURL string, db *gorm.DB, votes *vote.Service) (*BotHandler, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	handler := &BotHandler{
		Bot:     b,
		SiteURL: siteURL,
		db:      db,
		votes:   votes,
	}

	handler.setupHandlers()
	return handler, nil
}

// setupHandlers registers all command handlers
func (h *BotHandler) setupHandlers() {
	h.Bot.Handle("/start", h.handleStart)
	h.Bot.Handle("/top", h.handleTop)
}

// handleStart responds to the /start command with a link to the listing
func (h *BotHandler) handleStart(c telebot.Context) error {
	message := fmt.Sprintf("Welcome to Kaizen Votes, %s! Use /top <server id> [daily|weekly|monthly|yearly|all] to see the best voters.", c.Sender().FirstName)
	if h.SiteURL == "" {
		return c.Send(message)
	}

	siteButton := telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{
			{
				telebot.InlineButton{
					Text: "🗳 Open server list",
					URL:  h.SiteURL,
				},
			},
		},
	}
	return c.Send(message, &siteButton)
}

// handleTop replies with a server's vote leaderboard
func (h *BotHandler) handleTop(c telebot.Context) error {
	serverID, period, err := parseTopArgs(c.Args())
	if err != nil {
		return c.Send(err.Error())
	}

	var server model.Server
	if err := h.db.First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Send("Server not found.")
		}
		return err
	}

	entries, err := h.votes.Leaderboard(context.Background(), server.ID, period, 10, time.Now())
	if err != nil {
		log.Printf("[bot] leaderboard for server %d: %v", server.ID, err)
		return c.Send("Could not load the leaderboard, try again later.")
	}
	return c.Send(formatLeaderboard(server.Name, period, entries))
}

// VoteSettled posts the vote to the server's Telegram chat, if one is set.
func (h *BotHandler) VoteSettled(_ context.Context, v model.Vote, s model.Server) {
	if s.TelegramChatID == 0 {
		return
	}
	go func() {
		if _, err := h.Bot.Send(telebot.ChatID(s.TelegramChatID), formatVoteMessage(v, s)); err != nil {
			log.Printf("[bot] notify chat %d: %v", s.TelegramChatID, err)
		}
	}()
}

// Start starts the bot poller
func (h *BotHandler) Start() {
	h.Bot.Start()
}

func (h *BotHandler) Stop() {
	h.Bot.Stop()
}

func parseTopArgs(args []string) (uint, string, error) {
	if len(args) == 0 {
		return 0, "", errors.New("Usage: /top <server id> [daily|weekly|monthly|yearly|all]")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return 0, "", errors.New("Server id must be a positive number.")
	}
	period := vote.PeriodMonthly
	if len(args) > 1 {
		period = strings.ToLower(args[1])
		switch period {
		case vote.PeriodDaily, vote.PeriodWeekly, vote.PeriodMonthly, vote.PeriodYearly, vote.PeriodAll:
		default:
			return 0, "", fmt.Errorf("Unknown period %q.", args[1])
		}
	}
	return uint(id), period, nil
}

func formatVoteMessage(v model.Vote, s model.Server) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗳 %s voted for %s", v.MinecraftUsername, s.Name)
	if v.Streak > 1 {
		fmt.Fprintf(&sb, " (streak %d)", v.Streak)
	}
	if n := len(v.EarnedRewards); n > 0 {
		fmt.Fprintf(&sb, "\n🎁 %d reward(s) waiting to be claimed", n)
	}
	return sb.String()
}

func formatLeaderboard(serverName, period string, entries []vote.LeaderboardEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No votes for %s yet (%s).", serverName, period)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 Top voters of %s (%s)\n", serverName, period)
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%d. %s: %d", e.Position, e.PlayerName, e.Votes)
	}
	return sb.String()
}
