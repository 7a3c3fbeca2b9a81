package game

// Letters is the 26 letter alphabet A..Z.
var Letters = Catalog{
	Name: "letters",
	Symbols: []Symbol{
		"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
		"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
	},
}

// Classic is the 55 picture set of the physical card game.
var Classic = Catalog{
	Name: "classic",
	Symbols: []Symbol{
		"anchor", "apple", "baby-bottle", "bomb", "cactus",
		"candle", "carrot", "cheese", "chess-knight", "clock",
		"clown", "daisy", "dinosaur", "dog", "dolphin",
		"dragon", "exclamation-mark", "eye", "fire", "four-leaf-clover",
		"ghost", "green-splash", "hammer", "heart", "ice-cube",
		"igloo", "key", "ladybird", "light-bulb", "lightning",
		"lock", "maple-leaf", "moon", "no-entry", "pencil",
		"purple-bird", "purple-cat", "question-mark", "red-lips", "scarecrow",
		"scissors", "skull", "snowflake", "snowman", "spider",
		"spider-web", "sun", "sunglasses", "target", "taxi",
		"tortoise", "treble-clef", "tree", "water-drop", "yin-yang",
	},
}
