package vote

import (
	"strconv"

	"kaizen-votes/internal/model"
)

// ServiceName identifies this listing in vote events sent to plugins.
const ServiceName = "Kaizen Votes"

// Event is the plugin-facing form of a vote, used by the pending queue and
// the real-time feed alike.
type Event struct {
	ID          string        `json:"id"`
	PlayerUUID  string        `json:"player_uuid"`
	PlayerName  string        `json:"player_name"`
	ServiceName string        `json:"service_name"`
	Timestamp   int64         `json:"timestamp"` // unix millis
	Claimed     bool          `json:"claimed"`
	Rewards     []EventReward `json:"rewards"`
}

type EventReward struct {
	ID      string `json:"id"`
	VoteID  string `json:"vote_id"`
	Claimed bool   `json:"claimed"`
}

func NewEvent(v model.Vote) Event {
	id := strconv.FormatUint(uint64(v.ID), 10)
	rewards := make([]EventReward, 0, len(v.EarnedRewards))
	for _, rid := range v.EarnedRewards {
		rewards = append(rewards, EventReward{
			ID:      strconv.FormatUint(uint64(rid), 10),
			VoteID:  id,
			Claimed: v.Claimed,
		})
	}
	return Event{
		ID:          id,
		PlayerUUID:  v.MinecraftUUID,
		PlayerName:  v.MinecraftUsername,
		ServiceName: ServiceName,
		Timestamp:   v.CreatedAt.UnixMilli(),
		Claimed:     v.Claimed,
		Rewards:     rewards,
	}
}

func NewEvents(votes []model.Vote) []Event {
	events := make([]Event, 0, len(votes))
	for _, v := range votes {
		events = append(events, NewEvent(v))
	}
	return events
}
