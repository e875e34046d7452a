package relay

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// roomIDWords is the number of words in a generated room ID.
const roomIDWords = 4

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"chick", "duckling", "fawn", "foal", "lamb", "calf", "porcupine", "raccoon", "skunk", "mole",
	"mouse", "rat", "ferret", "weasel", "beaver", "seahorse", "starfish", "dolphin", "whale", "narwhal",
	"penguin", "flamingo", "pelican", "swallow", "sparrow", "robin", "toucan", "parrot", "canary", "cockatoo",
}

var dishes = []string{
	"pancake", "waffle", "sushi", "ramen", "curry", "taco", "burrito", "biryani", "paella", "risotto",
	"lasagna", "pizza", "burger", "salad", "soup", "stew", "dumpling", "noodle", "omelette", "quiche",
	"sandwich", "kebab", "shawarma", "fondue", "pierogi", "gnocchi", "falafel", "samosa", "poutine", "dimsum",
}

var names = []string{
	"alice", "bob", "charlie", "daisy", "ella", "finn", "grace", "henry", "isla", "jack",
	"kai", "luna", "mia", "noah", "olivia", "peter", "quinn", "rachel", "sam", "tina",
	"uma", "victor", "winnie", "xavier", "yara", "zoe", "aaron", "bella", "carlos", "diana",
}

var randomWords = []string{
	"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "whisker", "echo", "jelly",
	"marble", "maple", "cocoa", "hazel", "breeze", "meadow", "willow", "ember", "peppermint", "cinnamon",
	"poppy", "lucky", "pixel", "biscuit", "cupcake", "nugget", "crumb", "toffee", "sprinkle", "twig",
}

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "blue", "red", "green", "bright", "gentle",
	"brave", "calm", "swift", "silent", "noisy", "bouncy", "fuzzy", "plucky", "merry", "peppy",
}

var extras = []string{
	"dragon", "unicorn", "griffin", "phoenix", "fairy", "gnome", "sprite", "pixie", "mermaid", "elf",
	"hobbit", "otterly", "purr", "meow", "woof", "chirp", "splash", "drizzle", "thimble", "button",
	"lantern", "puddle", "pebble", "cottage", "rocket", "comet", "orbit", "nebula", "canyon", "ridge",
}

var wordLists = [][]string{animals, dishes, names, randomWords, adjectives, extras}

// generateRoomID creates a memorable room ID such as
// "kitten-waffle-stardust-happy": one word from each of four distinct lists.
// taken reports IDs that are already in use.
func generateRoomID(taken func(string) bool) (string, error) {
	for {
		lists, err := pickLists(roomIDWords)
		if err != nil {
			return "", err
		}

		words := make([]string, 0, roomIDWords)
		for _, list := range lists {
			i, err := randomIndex(len(list))
			if err != nil {
				return "", err
			}
			words = append(words, list[i])
		}

		id := strings.Join(words, "-")
		if !taken(id) {
			return id, nil
		}
	}
}

// pickLists chooses n distinct word lists.
func pickLists(n int) ([][]string, error) {
	used := make(map[int]bool, n)
	lists := make([][]string, 0, n)
	for len(lists) < n {
		i, err := randomIndex(len(wordLists))
		if err != nil {
			return nil, err
		}
		if used[i] {
			continue
		}
		used[i] = true
		lists = append(lists, wordLists[i])
	}
	return lists, nil
}

// randomIndex returns a cryptographically secure random index below max.
func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generate random index: %w", err)
	}
	return int(n.Int64()), nil
}
