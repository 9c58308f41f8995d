package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/google/uuid"
)

const centerIdx = models.GridSize / 2

// cardNamespace roots the deterministic card ids so a restarted engine
// regenerates the same ids the store already holds.
var cardNamespace = uuid.MustParse("6f0d5a52-3b8e-4f4e-9a59-2d6f1b7c9e10")

// Generate returns the grid of cardNumber for the round seeded with seed.
// Each column is a seeded shuffle of its 15 numbers, first 5 kept; the center is free.
func Generate(seed int64, cardNumber int) models.Grid {
	var g models.Grid
	nums := make([]int, models.ColumnSpan)
	for col := 0; col < models.GridSize; col++ {
		lo, _ := models.ColumnRange(col)
		for i := range nums {
			nums[i] = lo + i
		}
		r := rand.New(rand.NewChaCha8(columnSeed(seed, cardNumber, col)))
		r.Shuffle(len(nums), func(i, j int) { nums[i], nums[j] = nums[j], nums[i] })

		for row := 0; row < models.GridSize; row++ {
			g[row][col] = models.Cell{Letter: models.Letters[col], Number: nums[row]}
		}
	}
	g[centerIdx][centerIdx] = models.Cell{Letter: models.Letters[centerIdx], Free: true}
	return g
}

func columnSeed(seed int64, cardNumber, col int) [32]byte {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(seed))
	binary.BigEndian.PutUint64(buf[8:], uint64(cardNumber))
	binary.BigEndian.PutUint64(buf[16:], uint64(col))
	return sha256.Sum256(buf[:])
}

// CardID is the stable id of a card within a round.
func CardID(roundID int64, cardNumber int) string {
	return uuid.NewSHA1(cardNamespace, []byte(fmt.Sprintf("%d/%d", roundID, cardNumber))).String()
}

// GenerateCards builds the full unowned inventory of a round.
func GenerateCards(roundID, seed int64) []*models.Card {
	cards := make([]*models.Card, models.CardsPerRound)
	for i := range cards {
		n := i + 1
		c := &models.Card{
			ID:         CardID(roundID, n),
			RoundID:    roundID,
			CardNumber: n,
			Grid:       Generate(seed, n),
		}
		c.Marked[centerIdx][centerIdx] = true
		cards[i] = c
	}
	return cards
}
