package transcribe

// defaultBoostTerms biases recognition toward tabletop vocabulary the
// provider's general model tends to mangle.
var defaultBoostTerms = []string{
	"d20", "d12", "d10", "d8", "d6", "d4",
	"saving throw", "skill check", "ability check", "advantage", "disadvantage",
	"initiative", "armor class", "hit points", "hit dice", "proficiency bonus",
	"spell slot", "cantrip", "concentration", "ritual", "attack roll",
	"critical hit", "natural twenty", "natural one", "opportunity attack",
	"long rest", "short rest", "death save", "difficulty class",
	"dungeon master", "game master", "player character", "non-player character",
	"barbarian", "paladin", "warlock", "sorcerer", "ranger", "rogue", "druid",
	"cleric", "bard", "wizard", "fighter", "monk",
	"tiefling", "dragonborn", "halfling", "half-orc", "half-elf", "gnome",
	"eldritch blast", "fireball", "counterspell", "misty step", "shield",
	"healing word", "cure wounds", "guidance", "bless", "hex",
	"beholder", "mind flayer", "lich", "mimic", "owlbear", "gelatinous cube",
	"kobold", "goblin", "bugbear", "displacer beast",
}

// BoostTerms returns up to max vocabulary terms for a transcription job.
// A non-positive max disables boosting.
func BoostTerms(max int) []string {
	if max <= 0 {
		return nil
	}
	if max >= len(defaultBoostTerms) {
		return append([]string(nil), defaultBoostTerms...)
	}
	return append([]string(nil), defaultBoostTerms[:max]...)
}
