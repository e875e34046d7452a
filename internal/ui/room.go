package ui

import (
	"fmt"
)

// RoomInfo is the box shown after a room has been created, so the other
// side knows what to join.
type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func (r RoomInfo) View() string {
	content := fmt.Sprintf("%s Room ready\n\n%s Room ID:    %s\n%s Room Link:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
		MutedStyle.Render("Share either one. The other side runs: warpcall call "+r.RoomID),
	)
	return RoomBoxStyle.Render(content)
}

func RenderRoomInfo(roomID, roomLink string) {
	fmt.Println(RoomInfo{RoomID: roomID, RoomLink: roomLink}.View())
}
