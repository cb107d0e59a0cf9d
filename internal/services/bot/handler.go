// Package bot implements the Telegram update handlers for the referral
// program: commands, inline callbacks and channel membership events.
package bot

import (
	"context"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/message"

	apperrors "github.com/earnpro/referralpro/internal/platform/errors"
	"github.com/earnpro/referralpro/internal/platform/i18n/catalog"
	"github.com/earnpro/referralpro/internal/services/referral/domain"
	"github.com/earnpro/referralpro/internal/services/referral/storage"
)

const (
	callbackRefreshStatus = "refresh_status"
	callbackMyLink        = "my_link"
	callbackClaimReward   = "claim_reward"
	callbackHelp          = "help"
	callbackShareSuccess  = "share_success"
	callbackBackToStatus  = "back_to_status"
	callbackLangPrefix    = "lang_"
)

// Messenger is the Telegram surface the handlers depend on.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID string) error
	IsChannelMember(ctx context.Context, userID int64) (bool, error)
	BotUsername() string
}

// Handler routes Telegram updates into the referral engine.
type Handler struct {
	engine     *domain.Engine
	client     Messenger
	bundle     *catalog.Bundle
	channelID  int64
	channelURL string
	admins     map[int64]bool
}

// NewHandler creates the bot update handler. channelID is the tracked
// channel, channelURL its public join link shown in welcome texts.
func NewHandler(engine *domain.Engine, client Messenger, channelID int64, channelURL string, adminIDs []int64) *Handler {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Handler{
		engine:     engine,
		client:     client,
		bundle:     catalog.Default(),
		channelID:  channelID,
		channelURL: channelURL,
		admins:     admins,
	}
}

// HandleUpdate dispatches one Telegram update. Failures are logged, never
// propagated; the update loop must keep running.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if h == nil {
		return
	}
	switch {
	case update.Message != nil && update.Message.IsCommand():
		h.handleCommand(ctx, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.ChatMember != nil:
		h.handleChatMember(ctx, update.ChatMember)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "status":
		h.handleStatus(ctx, msg)
	case "claim":
		h.claim(ctx, msg.Chat.ID, msg.From.ID, msg.From.LanguageCode)
	case "help":
		h.handleHelp(ctx, msg)
	case "language":
		h.handleLanguage(ctx, msg)
	case "admin_stats":
		h.handleAdminStats(ctx, msg)
	}
}

// localeFor resolves the rendering locale: the stored preference wins,
// then the Telegram client hint, then the base locale.
func (h *Handler) localeFor(user storage.User, hint string) string {
	var candidates []string
	if strings.TrimSpace(user.Language) != "" {
		candidates = append(candidates, user.Language)
	}
	if strings.TrimSpace(hint) != "" {
		candidates = append(candidates, hint)
	}
	return h.bundle.MatchLocale(candidates...)
}

func (h *Handler) printer(locale string) *message.Printer {
	return h.bundle.Printer(locale)
}

// referralLink builds the deep link friends use to start the bot with the
// user's code.
func (h *Handler) referralLink(user storage.User) string {
	return "https://t.me/" + h.client.BotUsername() + "?start=" + user.ReferralCode
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if err := h.client.SendMessage(ctx, chatID, text, markup); err != nil {
		log.Printf("send to chat %d: %v", chatID, err)
	}
}

func (h *Handler) sendGenericError(ctx context.Context, chatID int64, locale string) {
	h.send(ctx, chatID, h.printer(locale).Sprintf("bot.error_generic"), nil)
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	locale := h.bundle.MatchLocale(from.LanguageCode)
	user, _, err := h.engine.RegisterUser(ctx, domain.NewUser{
		UserID:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
		Language:  locale,
	})
	if err != nil {
		log.Printf("register user %d: %v", from.ID, err)
		h.sendGenericError(ctx, msg.Chat.ID, locale)
		return
	}
	locale = h.localeFor(user, from.LanguageCode)
	p := h.printer(locale)

	payload := strings.TrimSpace(msg.CommandArguments())
	referred := false
	if domain.IsReferralCode(payload) {
		_, err := h.engine.RecordReferral(ctx, payload, user.UserID)
		switch {
		case err == nil:
			referred = true
		case apperrors.IsCode(err, apperrors.CodeSelfReferral),
			apperrors.IsCode(err, apperrors.CodeAlreadyReferred),
			apperrors.IsCode(err, apperrors.CodeNotFound):
			// Expected rejections; the welcome flow continues unreferred.
		default:
			log.Printf("record referral for user %d: %v", user.UserID, err)
		}
	}

	member, err := h.client.IsChannelMember(ctx, user.UserID)
	if err != nil {
		log.Printf("check membership for user %d: %v", user.UserID, err)
	}
	if !member {
		if referred {
			h.send(ctx, msg.Chat.ID, p.Sprintf("bot.referral_welcome", h.channelURL), nil)
			return
		}
		h.send(ctx, msg.Chat.ID, p.Sprintf("bot.welcome_new_user", h.channelURL), nil)
		return
	}

	// The user is already in the channel; the join event may have been
	// missed, so record it here and notify the referrer if an edge flips.
	referrer, err := h.engine.OnChannelJoin(ctx, user.UserID)
	if err != nil {
		log.Printf("record channel join for user %d: %v", user.UserID, err)
	} else if referrer != 0 {
		h.notifyReferrerJoined(ctx, referrer)
	}

	progress, err := h.engine.Progress(ctx, user.UserID)
	if err != nil {
		log.Printf("progress for user %d: %v", user.UserID, err)
		h.sendGenericError(ctx, msg.Chat.ID, locale)
		return
	}
	text := p.Sprintf("bot.welcome_existing_member", h.channelURL, h.referralLink(user), progress.Target)
	h.send(ctx, msg.Chat.ID, text, statusKeyboard(p, rewardAvailable(progress, user)))
}

func (h *Handler) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	text, markup, ok := h.statusView(ctx, msg.From.ID, msg.From.LanguageCode)
	if !ok {
		locale := h.bundle.MatchLocale(msg.From.LanguageCode)
		h.send(ctx, msg.Chat.ID, h.printer(locale).Sprintf("bot.error_register_first"), nil)
		return
	}
	h.send(ctx, msg.Chat.ID, text, markup)
}

// statusView renders the status message for a registered user. ok=false
// means the user has not registered yet.
func (h *Handler) statusView(ctx context.Context, userID int64, hint string) (string, *tgbotapi.InlineKeyboardMarkup, bool) {
	user, err := h.engine.GetUser(ctx, userID)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeNotFound) {
			log.Printf("get user %d: %v", userID, err)
		}
		return "", nil, false
	}
	progress, err := h.engine.Progress(ctx, userID)
	if err != nil {
		log.Printf("progress for user %d: %v", userID, err)
		return "", nil, false
	}
	p := h.printer(h.localeFor(user, hint))
	return renderStatus(p, progress, user), statusKeyboard(p, rewardAvailable(progress, user)), true
}

func (h *Handler) claim(ctx context.Context, chatID int64, userID int64, hint string) {
	user, err := h.engine.GetUser(ctx, userID)
	if err != nil {
		locale := h.bundle.MatchLocale(hint)
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			h.send(ctx, chatID, h.printer(locale).Sprintf("bot.error_register_first"), nil)
			return
		}
		log.Printf("get user %d: %v", userID, err)
		h.sendGenericError(ctx, chatID, locale)
		return
	}
	locale := h.localeFor(user, hint)
	p := h.printer(locale)

	member, err := h.client.IsChannelMember(ctx, userID)
	if err != nil {
		log.Printf("check membership for user %d: %v", userID, err)
		h.sendGenericError(ctx, chatID, locale)
		return
	}
	if !member {
		h.send(ctx, chatID, p.Sprintf("bot.error_not_channel_member", h.channelURL), nil)
		return
	}

	result, err := h.engine.ClaimReward(ctx, userID)
	switch {
	case err == nil && result.AlreadyClaimed:
		h.send(ctx, chatID, p.Sprintf("bot.error_reward_already_claimed", h.referralLink(user)), backKeyboard(p))
	case err == nil:
		h.send(ctx, chatID, p.Sprintf("bot.reward_claimed", result.Reward, h.referralLink(user)), claimedKeyboard(p))
	case apperrors.IsCode(err, apperrors.CodeNotEligible):
		meta := apperrors.GetMetadata(err)
		active, _ := strconv.Atoi(meta["active"])
		target, _ := strconv.Atoi(meta["target"])
		h.send(ctx, chatID, p.Sprintf("bot.error_reward_not_available", active, target), backKeyboard(p))
	default:
		log.Printf("claim reward for user %d: %v", userID, err)
		h.sendGenericError(ctx, chatID, locale)
	}
}

func (h *Handler) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	user, _ := h.engine.GetUser(ctx, msg.From.ID)
	p := h.printer(h.localeFor(user, msg.From.LanguageCode))
	h.send(ctx, msg.Chat.ID, p.Sprintf("bot.help_message"), backKeyboard(p))
}

func (h *Handler) handleLanguage(ctx context.Context, msg *tgbotapi.Message) {
	user, _ := h.engine.GetUser(ctx, msg.From.ID)
	p := h.printer(h.localeFor(user, msg.From.LanguageCode))
	h.send(ctx, msg.Chat.ID, p.Sprintf("bot.language_selection"), languageKeyboard())
}

func (h *Handler) handleAdminStats(ctx context.Context, msg *tgbotapi.Message) {
	user, _ := h.engine.GetUser(ctx, msg.From.ID)
	p := h.printer(h.localeFor(user, msg.From.LanguageCode))
	if !h.admins[msg.From.ID] {
		h.send(ctx, msg.Chat.ID, p.Sprintf("bot.error_no_permission"), nil)
		return
	}
	stats, err := h.engine.AdminStats(ctx)
	if err != nil {
		log.Printf("admin stats: %v", err)
		h.sendGenericError(ctx, msg.Chat.ID, h.localeFor(user, msg.From.LanguageCode))
		return
	}
	text := p.Sprintf("bot.admin_stats",
		stats.TotalUsers,
		stats.ChannelMembers,
		stats.TotalReferrals,
		stats.RewardsClaimed,
	)
	h.send(ctx, msg.Chat.ID, text, nil)
}

func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if err := h.client.AnswerCallback(ctx, cq.ID); err != nil {
		log.Printf("answer callback %s: %v", cq.ID, err)
	}
	if cq.Message == nil || cq.From == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID
	userID := cq.From.ID
	hint := cq.From.LanguageCode

	switch data := cq.Data; {
	case data == callbackRefreshStatus || data == callbackBackToStatus:
		text, markup, ok := h.statusView(ctx, userID, hint)
		if !ok {
			locale := h.bundle.MatchLocale(hint)
			h.send(ctx, chatID, h.printer(locale).Sprintf("bot.error_register_first"), nil)
			return
		}
		if err := h.client.EditMessage(ctx, chatID, messageID, text, markup); err != nil {
			// "message is not modified" happens on fast refreshes.
			log.Printf("edit status message: %v", err)
		}
	case data == callbackMyLink || data == callbackShareSuccess:
		h.sendMyLink(ctx, chatID, userID, hint)
	case data == callbackClaimReward:
		h.claim(ctx, chatID, userID, hint)
	case data == callbackHelp:
		user, _ := h.engine.GetUser(ctx, userID)
		p := h.printer(h.localeFor(user, hint))
		if err := h.client.EditMessage(ctx, chatID, messageID, p.Sprintf("bot.help_message"), backKeyboard(p)); err != nil {
			log.Printf("edit help message: %v", err)
		}
	case strings.HasPrefix(data, callbackLangPrefix):
		h.changeLanguage(ctx, chatID, messageID, userID, strings.TrimPrefix(data, callbackLangPrefix))
	}
}

func (h *Handler) sendMyLink(ctx context.Context, chatID int64, userID int64, hint string) {
	user, err := h.engine.GetUser(ctx, userID)
	if err != nil {
		locale := h.bundle.MatchLocale(hint)
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			h.send(ctx, chatID, h.printer(locale).Sprintf("bot.error_register_first"), nil)
			return
		}
		log.Printf("get user %d: %v", userID, err)
		h.sendGenericError(ctx, chatID, locale)
		return
	}
	progress, err := h.engine.Progress(ctx, userID)
	if err != nil {
		log.Printf("progress for user %d: %v", userID, err)
		h.sendGenericError(ctx, chatID, h.localeFor(user, hint))
		return
	}
	p := h.printer(h.localeFor(user, hint))
	h.send(ctx, chatID, p.Sprintf("bot.my_link", h.referralLink(user), progress.Target), backKeyboard(p))
}

func (h *Handler) changeLanguage(ctx context.Context, chatID int64, messageID int, userID int64, locale string) {
	if !h.bundle.HasLocale(locale) {
		return
	}
	if err := h.engine.SetLanguage(ctx, userID, locale); err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			h.send(ctx, chatID, h.printer(locale).Sprintf("bot.error_register_first"), nil)
			return
		}
		log.Printf("set language for user %d: %v", userID, err)
		h.sendGenericError(ctx, chatID, locale)
		return
	}
	p := h.printer(locale)
	if err := h.client.EditMessage(ctx, chatID, messageID, p.Sprintf("bot.language_changed"), backKeyboard(p)); err != nil {
		log.Printf("edit language message: %v", err)
	}
}

func isMemberStatus(member tgbotapi.ChatMember) bool {
	switch member.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return member.IsMember
	default:
		return false
	}
}

func (h *Handler) handleChatMember(ctx context.Context, ev *tgbotapi.ChatMemberUpdated) {
	if ev.Chat.ID != h.channelID {
		return
	}
	if ev.NewChatMember.User == nil {
		return
	}
	userID := ev.NewChatMember.User.ID
	wasMember := isMemberStatus(ev.OldChatMember)
	nowMember := isMemberStatus(ev.NewChatMember)

	switch {
	case nowMember && !wasMember:
		referrer, err := h.engine.OnChannelJoin(ctx, userID)
		if err != nil {
			log.Printf("channel join for user %d: %v", userID, err)
			return
		}
		h.welcomeJoinedUser(ctx, userID)
		if referrer != 0 {
			h.notifyReferrerJoined(ctx, referrer)
		}
	case !nowMember && wasMember:
		referrer, err := h.engine.OnChannelLeave(ctx, userID)
		if err != nil {
			log.Printf("channel leave for user %d: %v", userID, err)
			return
		}
		if referrer != 0 {
			h.notifyReferrerLeft(ctx, referrer)
		}
	}
}

// welcomeJoinedUser confirms the join in the user's private chat. Users
// who never started the bot cannot be messaged; that failure is expected.
func (h *Handler) welcomeJoinedUser(ctx context.Context, userID int64) {
	user, err := h.engine.GetUser(ctx, userID)
	if err != nil {
		return
	}
	progress, err := h.engine.Progress(ctx, userID)
	if err != nil {
		log.Printf("progress for user %d: %v", userID, err)
		return
	}
	p := h.printer(h.localeFor(user, ""))
	text := p.Sprintf("bot.channel_joined_success", h.channelURL, h.referralLink(user), progress.Target)
	if err := h.client.SendMessage(ctx, userID, text, statusKeyboard(p, rewardAvailable(progress, user))); err != nil {
		log.Printf("welcome joined user %d: %v", userID, err)
	}
}

func (h *Handler) notifyReferrerJoined(ctx context.Context, referrerID int64) {
	user, err := h.engine.GetUser(ctx, referrerID)
	if err != nil {
		log.Printf("get referrer %d: %v", referrerID, err)
		return
	}
	progress, err := h.engine.Progress(ctx, referrerID)
	if err != nil {
		log.Printf("progress for referrer %d: %v", referrerID, err)
		return
	}
	p := h.printer(h.localeFor(user, ""))
	if rewardAvailable(progress, user) {
		h.send(ctx, referrerID, p.Sprintf("bot.reward_available"), statusKeyboard(p, true))
		return
	}
	h.send(ctx, referrerID, p.Sprintf("bot.referral_joined", progress.ActiveReferrals, progress.Target), nil)
}

func (h *Handler) notifyReferrerLeft(ctx context.Context, referrerID int64) {
	user, err := h.engine.GetUser(ctx, referrerID)
	if err != nil {
		log.Printf("get referrer %d: %v", referrerID, err)
		return
	}
	progress, err := h.engine.Progress(ctx, referrerID)
	if err != nil {
		log.Printf("progress for referrer %d: %v", referrerID, err)
		return
	}
	p := h.printer(h.localeFor(user, ""))
	h.send(ctx, referrerID, p.Sprintf("bot.referral_left", progress.ActiveReferrals, progress.Target), nil)
}
