package correct

// DefaultVocabulary lists card-game terms in Portuguese and English. Entries
// are at least five letters long so short function words ("do", "na", "era")
// never fall within MaxCorrectionDistance of one.
var DefaultVocabulary = []string{
	// card types
	"criatura", "feitiço", "instantânea", "encantamento", "artefato", "terreno",
	"lendária", "lendário", "planeswalker", "creature", "sorcery", "instant",
	"enchantment", "artifact", "legendary", "battle",
	// keywords
	"atropelar", "ímpeto", "vigilância", "defensor", "alcance", "lampejo",
	"resistência", "ameaça", "indestrutível", "flying", "trample", "haste",
	"vigilance", "deathtouch", "lifelink", "defender", "flash", "hexproof",
	"indestructible", "menace", "first", "strike",
	// zones and actions
	"batalha", "cemitério", "grimório", "exílio", "exilar", "jogador", "oponente",
	"desvirar", "sacrifique", "descarte", "controlador", "habilidade", "conjurar",
	"ataque", "bloqueio", "combate", "battlefield", "graveyard", "library",
	"exile", "counter", "target", "player", "opponent", "damage", "untap",
	"token", "sacrifice", "discard", "controller", "ability",
}

// DefaultReplacements fixes OCR confusions that are unambiguous anywhere in a
// card. No replacement produces text that another entry would rewrite.
var DefaultReplacements = []Replacement{
	{From: "|", To: "I"},
	{From: "ﬁ", To: "fi"},
	{From: "ﬂ", To: "fl"},
	{From: "“", To: `"`},
	{From: "”", To: `"`},
	{From: "‘", To: "'"},
	{From: "’", To: "'"},
	{From: "—", To: "-"},
	{From: "–", To: "-"},
	{From: "Planeswa1ker", To: "Planeswalker"},
	{From: "Criatvra", To: "Criatura"},
}
