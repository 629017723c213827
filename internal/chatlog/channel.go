package chatlog

import "strings"

// ChannelCode is the game's chat channel identifier (4-digit hex).
type ChannelCode string

const (
	ChannelSay                 ChannelCode = "000A"
	ChannelShout               ChannelCode = "000B"
	ChannelTellSend            ChannelCode = "000C"
	ChannelTellReceive         ChannelCode = "000D"
	ChannelParty               ChannelCode = "000E"
	ChannelAlliance            ChannelCode = "000F"
	ChannelLinkshell1          ChannelCode = "0010"
	ChannelLinkshell2          ChannelCode = "0011"
	ChannelLinkshell3          ChannelCode = "0012"
	ChannelLinkshell4          ChannelCode = "0013"
	ChannelLinkshell5          ChannelCode = "0014"
	ChannelLinkshell6          ChannelCode = "0015"
	ChannelLinkshell7          ChannelCode = "0016"
	ChannelLinkshell8          ChannelCode = "0017"
	ChannelFreeCompany         ChannelCode = "0018"
	ChannelNoviceNetwork       ChannelCode = "001B"
	ChannelCustomEmote         ChannelCode = "001C"
	ChannelStandardEmote       ChannelCode = "001D"
	ChannelYell                ChannelCode = "001E"
	ChannelCrossWorldLinkshell ChannelCode = "0025"
	ChannelSystemMessage       ChannelCode = "0039"
	ChannelNPCAnnounce         ChannelCode = "0044"
)

type channelInfo struct {
	code ChannelCode
	name string
}

// Ordered as shown in page settings.
var channelTable = []channelInfo{
	{ChannelSay, "say"},
	{ChannelShout, "shout"},
	{ChannelYell, "yell"},
	{ChannelTellSend, "tell_send"},
	{ChannelTellReceive, "tell_receive"},
	{ChannelParty, "party"},
	{ChannelAlliance, "alliance"},
	{ChannelLinkshell1, "linkshell1"},
	{ChannelLinkshell2, "linkshell2"},
	{ChannelLinkshell3, "linkshell3"},
	{ChannelLinkshell4, "linkshell4"},
	{ChannelLinkshell5, "linkshell5"},
	{ChannelLinkshell6, "linkshell6"},
	{ChannelLinkshell7, "linkshell7"},
	{ChannelLinkshell8, "linkshell8"},
	{ChannelCrossWorldLinkshell, "cwls"},
	{ChannelFreeCompany, "free_company"},
	{ChannelNoviceNetwork, "novice_network"},
	{ChannelCustomEmote, "custom_emote"},
	{ChannelStandardEmote, "standard_emote"},
	{ChannelNPCAnnounce, "npc_announce"},
	{ChannelSystemMessage, "system"},
}

// AllChannels returns every known channel in display order.
func AllChannels() []ChannelCode {
	out := make([]ChannelCode, len(channelTable))
	for i, c := range channelTable {
		out[i] = c.code
	}
	return out
}

// Name returns the config name of a known channel, or the raw code.
func (c ChannelCode) Name() string {
	for _, ci := range channelTable {
		if ci.code == c {
			return ci.name
		}
	}
	return string(c)
}

func (c ChannelCode) Known() bool {
	for _, ci := range channelTable {
		if ci.code == c {
			return true
		}
	}
	return false
}

// ParseChannel accepts either a channel name ("say", "Party") or a hex code
// ("000A"). Unknown values are returned as-is with ok=false.
func ParseChannel(raw string) (ChannelCode, bool) {
	s := strings.TrimSpace(raw)
	for _, ci := range channelTable {
		if strings.EqualFold(ci.name, s) || strings.EqualFold(string(ci.code), s) {
			return ci.code, true
		}
	}
	return ChannelCode(s), false
}
