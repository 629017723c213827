package chatlog

import "time"

// demoEntries builds the placeholder lines shown while a page is being
// designed or previewed.
func demoEntries(owner Owner) []Entry {
	now := time.Now()
	player := func(ch ChannelCode, msg string) Entry {
		return Entry{
			Timestamp:       now,
			Channel:         ch,
			OriginalSpeaker: "Naoki Yoshida",
			SpeakerAlias:    "Yoshi-P",
			SpeakerType:     SpeakerXIVPlayer,
			Message:         msg,
			Synthetic:       true,
		}
	}

	out := []Entry{
		{
			Timestamp:       now,
			Channel:         ChannelSystemMessage,
			OriginalSpeaker: "SYSTEM",
			SpeakerType:     SpeakerXIVPlayer,
			Message:         "Demo log " + owner.Page,
			Synthetic:       true,
		},
		player(ChannelSay, "Clear skies today."),
		player(ChannelSay, "Clear skies tomorrow too?"),
		player(ChannelSay, "That clear wind of Ihatov, the blue sky cold at its depths even in summer, the city of Morio adorned with beautiful forests."),
		player(ChannelParty, "Nice to meet you all!"),
		player(ChannelLinkshell1, "Hello, Linkshell 1."),
		player(ChannelLinkshell2, "Hello, Linkshell 2."),
		player(ChannelLinkshell3, "Hello, Linkshell 3."),
		player(ChannelLinkshell4, "Hello, Linkshell 4."),
		player(ChannelLinkshell5, "Hello, Linkshell 5."),
		player(ChannelLinkshell6, "Hello, Linkshell 6."),
		player(ChannelLinkshell7, "Hello, Linkshell 7."),
		player(ChannelLinkshell8, "Hello, Linkshell 8."),
		player(ChannelCrossWorldLinkshell, "Hello, CWLS."),
		player(ChannelFreeCompany, "Hello, Free Company."),
		{
			Timestamp:       now,
			Channel:         ChannelNPCAnnounce,
			OriginalSpeaker: "Nael deus Darnus",
			SpeakerType:     SpeakerXIVPlayer,
			Message:         "Chariot incoming ^ ^",
			Synthetic:       true,
		},
	}
	return out
}
