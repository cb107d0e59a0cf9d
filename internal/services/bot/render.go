package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/message"

	"github.com/earnpro/referralpro/internal/services/referral/domain"
	"github.com/earnpro/referralpro/internal/services/referral/storage"
)

const progressBarCells = 10

// languageLabels maps supported locales to their picker labels. The labels
// are self-describing, so they are not part of the message catalog.
var languageLabels = []struct {
	locale string
	label  string
}{
	{"en-US", "🇺🇸 English"},
	{"es-ES", "🇪🇸 Español"},
	{"fr-FR", "🇫🇷 Français"},
	{"de-DE", "🇩🇪 Deutsch"},
	{"ru-RU", "🇷🇺 Русский"},
}

func renderProgressBar(p *message.Printer, progress domain.Progress) string {
	filled := 0
	if progress.TargetSet {
		filled = int(progress.Percent) * progressBarCells / 100
	}
	if filled > progressBarCells {
		filled = progressBarCells
	}
	full := p.Sprintf("bot.progress_bar_full")
	empty := p.Sprintf("bot.progress_bar_empty")
	var bar strings.Builder
	for i := 0; i < progressBarCells; i++ {
		if i < filled {
			bar.WriteString(full)
		} else {
			bar.WriteString(empty)
		}
	}
	return bar.String()
}

func renderStatus(p *message.Printer, progress domain.Progress, user storage.User) string {
	var statusLine string
	switch {
	case progress.TargetSet && progress.TargetReached && !user.RewardClaimed:
		statusLine = p.Sprintf("bot.status_target_reached")
	case progress.ActiveReferrals == 0:
		statusLine = p.Sprintf("bot.status_no_referrals")
	default:
		statusLine = p.Sprintf("bot.status_progress", progress.Remaining)
	}
	return p.Sprintf("bot.status_message",
		progress.ActiveReferrals,
		progress.Target,
		progress.TotalReferrals,
		progress.Remaining,
		int(progress.Percent),
		renderProgressBar(p, progress),
		statusLine,
	)
}

func rewardAvailable(progress domain.Progress, user storage.User) bool {
	return progress.TargetSet && progress.TargetReached && !user.RewardClaimed
}

func statusKeyboard(p *message.Printer, showClaim bool) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData(p.Sprintf("bot.btn_refresh_status"), callbackRefreshStatus),
			tgbotapi.NewInlineKeyboardButtonData(p.Sprintf("bot.btn_my_link"), callbackMyLink),
		},
	}
	if showClaim {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(p.Sprintf("bot.btn_claim_reward"), callbackClaimReward),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(p.Sprintf("bot.btn_help"), callbackHelp),
	})
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func backKeyboard(p *message.Printer) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Sprintf("bot.btn_back"), callbackBackToStatus),
		),
	)
	return &markup
}

func claimedKeyboard(p *message.Printer) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Sprintf("bot.btn_share"), callbackShareSuccess),
			tgbotapi.NewInlineKeyboardButtonData(p.Sprintf("bot.btn_back"), callbackBackToStatus),
		),
	)
	return &markup
}

func languageKeyboard() *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, lang := range languageLabels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(lang.label, callbackLangPrefix+lang.locale),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
