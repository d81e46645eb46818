package domain

import "sort"

// EntryFor denormalizes an attempt into the slot leaderboard row.
func EntryFor(profile Profile, attempt QuizAttempt) LeaderboardEntry {
	return LeaderboardEntry{
		UserID:       profile.UserID,
		DisplayName:  profile.DisplayName,
		AvatarURL:    profile.AvatarURL,
		Score:        attempt.EffectiveScore(),
		TotalTimeMs:  attempt.TotalTimeMs(),
		Disqualified: attempt.Disqualified(),
	}
}

// RankEntries orders entries by score desc, then total time asc, then user id, and
// assigns 1-based ranks in place.
func RankEntries(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].TotalTimeMs != entries[j].TotalTimeMs {
			return entries[i].TotalTimeMs < entries[j].TotalTimeMs
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
