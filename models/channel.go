package models

import "sort"

// Provider is the underlying social platform behind one or more channels.
type Provider string

const (
	ProviderFacebook  Provider = "facebook"
	ProviderInstagram Provider = "instagram"
	ProviderLinkedIn  Provider = "linkedin"
	ProviderX         Provider = "x"
)

// Channel is a target surface on a provider.
type Channel string

const (
	ChannelFacebook       Channel = "facebook"
	ChannelInstagramFeed  Channel = "instagram_feed"
	ChannelInstagramStory Channel = "instagram_story"
	ChannelLinkedIn       Channel = "linkedin"
	ChannelX              Channel = "x"
	ChannelTwitter        Channel = "twitter" // legacy alias for x
)

var channelProviders = map[Channel]Provider{
	ChannelFacebook:       ProviderFacebook,
	ChannelInstagramFeed:  ProviderInstagram,
	ChannelInstagramStory: ProviderInstagram,
	ChannelLinkedIn:       ProviderLinkedIn,
	ChannelX:              ProviderX,
	ChannelTwitter:        ProviderX,
}

var channelLabels = map[Channel]string{
	ChannelFacebook:       "Facebook",
	ChannelInstagramFeed:  "Instagram Feed",
	ChannelInstagramStory: "Instagram Story",
	ChannelLinkedIn:       "LinkedIn",
	ChannelX:              "X",
	ChannelTwitter:        "X",
}

var providerLabels = map[Provider]string{
	ProviderFacebook:  "Facebook",
	ProviderInstagram: "Instagram",
	ProviderLinkedIn:  "LinkedIn",
	ProviderX:         "X",
}

// Provider returns the provider for c and whether c is a known channel.
func (c Channel) Provider() (Provider, bool) {
	p, ok := channelProviders[c]
	return p, ok
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	_, ok := channelProviders[c]
	return ok
}

// Label is the user-facing channel name.
func (c Channel) Label() string {
	if l, ok := channelLabels[c]; ok {
		return l
	}
	return string(c)
}

// Label is the user-facing provider name.
func (p Provider) Label() string {
	if l, ok := providerLabels[p]; ok {
		return l
	}
	return string(p)
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	_, ok := providerLabels[p]
	return ok
}

// KnownChannels returns every channel name in sorted order.
func KnownChannels() []string {
	out := make([]string, 0, len(channelProviders))
	for c := range channelProviders {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}
