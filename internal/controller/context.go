package controller

import "context"

type contextKey int

const (
	roomCodeCtxKey contextKey = iota
	memberIdCtxKey
	subscriptionIdCtxKey
)

func (c controller) getRoomCodeFromCtx(ctx context.Context) string {
	roomCode, ok := ctx.Value(roomCodeCtxKey).(string)
	if !ok {
		return ""
	}

	return roomCode
}

func (c controller) getMemberIdFromCtx(ctx context.Context) string {
	memberId, ok := ctx.Value(memberIdCtxKey).(string)
	if !ok {
		return ""
	}

	return memberId
}

func (c controller) getSubscriptionIdFromCtx(ctx context.Context) string {
	subscriptionId, ok := ctx.Value(subscriptionIdCtxKey).(string)
	if !ok {
		return ""
	}

	return subscriptionId
}
