package domain

// Notification is an outbound message to an operator chat.
// A nil EditTargetID means send new; otherwise the message is edited in place.
type Notification struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	ChatID       int64      `json:"chatId"`
	Text         string     `json:"message"`
	ParseMode    string     `json:"parseMode,omitempty"`
	Keyboard     [][]Button `json:"keyboard,omitempty"`
	Pin          bool       `json:"pin"`
	EditTargetID *int       `json:"editTargetId,omitempty"`
	DelayMs      int64      `json:"delayMs,omitempty"`
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Notification kinds.
const (
	NotifyBuyConfirmation  = "send-buy-confirmation"
	NotifySellConfirmation = "send-sell-confirmation"
	NotifyMonitor          = "send-ping-monitor"
	NotifyEditMonitor      = "edit-trade-monitor"
	NotifyBuyFailed        = "send-buy-failed"
	NotifySellFailed       = "send-sell-failed"
)
