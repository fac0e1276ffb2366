package domain

// PushFunction is the server-side function delivering push notifications.
const PushFunction = "send-push-notification"

const (
	PushTitle     = "New Message"
	TestPushBody  = "This is a test push!"
	InboundTag    = "message"
	MessagesRoute = "/#/messages"
)

// PushRequest is the body of the push function.
type PushRequest struct {
	Content      string `json:"content" validate:"required"`
	TargetUserID Alias  `json:"targetUserId" validate:"required,oneof=angy bozy"`
}
