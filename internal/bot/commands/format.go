package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/event"
)

// money renders an amount with thousands separators.
func money(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func formatBatch(b *auction.Batch) string {
	if b.AuctionComplete {
		return "Every priced player has been released. The auction is complete."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s batch**\n", b.Served)
	for _, p := range b.Players {
		base := "blind"
		if p.BasePrice != nil {
			base = money(*p.BasePrice)
		}
		fmt.Fprintf(&sb, "- %s (%s) base %s\n", p.Name, p.Team, base)
	}
	if len(b.Players) == 0 {
		sb.WriteString("No players left in this batch.\n")
	}
	if b.Next != "" {
		fmt.Fprintf(&sb, "Next up: %s", b.Next)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatSession(s auction.SessionView) string {
	switch s.State {
	case auction.StateSold:
		return fmt.Sprintf("**%s** sold to **%s** for %s.", s.Player, s.Winner, money(s.Price))
	case auction.StateClosed:
		return fmt.Sprintf("**%s** went unsold: %s.", s.Player, s.Reason)
	}
	line := fmt.Sprintf("**%s** (%s) %d bid(s), %s left", s.Player, s.Mode, s.BidCount, s.TimeRemaining.Round(time.Second))
	if s.HighBid != nil {
		line += fmt.Sprintf(", high %s by %s", money(*s.HighBid), s.HighBidder)
	}
	for _, b := range s.Bids {
		if s.Mode == auction.ModeBlind {
			line += fmt.Sprintf(", your bid %s", money(b.Amount))
		}
	}
	return line
}

func formatRoom(v *auction.RoomView) string {
	var sb strings.Builder
	sb.WriteString("**Teams**\n")
	for _, t := range v.Teams {
		names := make([]string, 0, len(t.Roster))
		for _, p := range t.Roster {
			names = append(names, p.Name)
		}
		fmt.Fprintf(&sb, "- %s: %s left, %d player(s)", t.Name, money(t.Budget), len(t.Roster))
		if len(names) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(names, ", "))
		}
		sb.WriteString("\n")
	}
	var live []string
	for _, s := range v.Sessions {
		if s.State == auction.StateActive {
			live = append(live, formatSession(s))
		}
	}
	if len(live) > 0 {
		sb.WriteString("**Live sessions**\n")
		for _, l := range live {
			fmt.Fprintf(&sb, "- %s\n", l)
		}
	}
	switch {
	case v.AuctionComplete:
		sb.WriteString("Auction complete.")
	case v.NextType != "":
		fmt.Fprintf(&sb, "%d player(s) released, next batch: %s", v.Dispatched, v.NextType)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatHistory(h *auction.HistoryView) string {
	if len(h.Sessions) == 0 {
		return "No finished sessions yet."
	}
	var sb strings.Builder
	for _, s := range h.Sessions {
		sb.WriteString(formatSession(s))
		if len(s.Bids) > 0 {
			bids := make([]string, 0, len(s.Bids))
			for _, b := range s.Bids {
				bids = append(bids, fmt.Sprintf("%s %s", b.Team, money(b.Amount)))
			}
			fmt.Fprintf(&sb, " Bids: %s", strings.Join(bids, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatEvent renders a room event as a channel announcement. It reports
// false for events that are not announced.
func FormatEvent(e event.Event) (string, bool) {
	switch e.Type {
	case event.RoomCreated:
		var d event.RoomCreatedData
		if json.Unmarshal(e.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("Auction room open. Each team starts with %s.", money(d.Budget)), true
	case event.TeamJoined:
		var d event.TeamJoinedData
		if json.Unmarshal(e.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("**%s** joined the room.", d.Team), true
	case event.SessionStarted:
		var d event.SessionStartedData
		if json.Unmarshal(e.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("Bidding open on **%s** (%s, %s).", d.Player, d.Mode, d.Timeout), true
	case event.BidPlaced:
		var d event.BidPlacedData
		if json.Unmarshal(e.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("**%s** bids %s on **%s** (%s left).",
			d.Team, money(d.Amount), d.Player, d.TimeRemaining.Round(time.Second)), true
	case event.BlindBidCount:
		var d event.BlindBidCountData
		if json.Unmarshal(e.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("**%s** has %d sealed bid(s).", d.Player, d.BidCount), true
	case event.SessionClosed:
		var d event.SessionClosedData
		if json.Unmarshal(e.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("**%s** went unsold: %s.", d.Player, d.Reason), true
	case event.PlayerSold:
		var d event.PlayerSoldData
		if json.Unmarshal(e.Data, &d) != nil {
			return "", false
		}
		return fmt.Sprintf("**%s** sold to **%s** for %s (%s).", d.Player, d.Team, money(d.Price), d.Mode), true
	case event.RoomExpired:
		return "This auction room was closed after a period of inactivity.", true
	}
	return "", false
}
