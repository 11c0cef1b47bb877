package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/models"
)

func TestFlipkartProductID(t *testing.T) {
	fk := NewFlipkart()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"itm path", "https://www.flipkart.com/sony-wh-1000xm5/p/itmf2a67d9f0c8e1", "f2a67d9f0c8e1"},
		{"pid query", "https://www.flipkart.com/sony-wh-1000xm5/p/something?pid=HPHGFD3ZYZHUGBXF", "HPHGFD3ZYZHUGBXF"},
		{"bare id segment", "https://www.flipkart.com/reviews/HPHGFD3ZYZHUGBXF?page=2", "HPHGFD3ZYZHUGBXF"},
		{"no id", "https://www.flipkart.com/search?q=headphones", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fk.ProductID(tt.url))
		})
	}
}

func TestFlipkartReviewPageURL(t *testing.T) {
	fk := NewFlipkart()

	got, err := fk.ReviewPageURL("https://www.flipkart.com/sony-wh-1000xm5/p/itmf2a67d9f0c8e1?pid=HPH123", 2)
	require.NoError(t, err)
	assert.Equal(t, "https://www.flipkart.com/sony-wh-1000xm5/product-reviews/itmf2a67d9f0c8e1?page=2", got)

	// An already-paged review URL just gets a fresh page parameter.
	got, err = fk.ReviewPageURL("https://www.flipkart.com/sony-wh-1000xm5/product-reviews/itmf2a67d9f0c8e1?page=1", 3)
	require.NoError(t, err)
	assert.Equal(t, "https://www.flipkart.com/sony-wh-1000xm5/product-reviews/itmf2a67d9f0c8e1?page=3", got)

	_, err = fk.ReviewPageURL("https://www.flipkart.com/search?q=headphones", 1)
	require.Error(t, err)
	assert.True(t, models.IsUnsupportedPage(err))
}

const flipkartProductHTML = `<html><body>
<div class="_2whKao">Home > Audio > Headphones</div>
<span class="B_NuCI">Sony WH-1000XM5 Bluetooth Headset</span>
<div class="_30jeq3">₹26,990</div>
<div class="_3LWZlK">4.4</div>
<span class="_2_R_DZ">11,508 Ratings &amp; 1,664 Reviews</span>
<img class="_396cs4" src="https://rukminim2.flixcart.com/image/xm5.jpg"/>
<div class="_1mXcCf"><ul><li>30 mm driver</li><li>40 hour battery</li></ul></div>
</body></html>`

func TestFlipkartExtractProductDetails(t *testing.T) {
	fk := NewFlipkart()
	page := rawPage(t, "https://www.flipkart.com/sony-wh-1000xm5/p/itmf2a67d9f0c8e1", flipkartProductHTML)

	details, err := fk.ExtractProductDetails(page)
	require.NoError(t, err)

	assert.Equal(t, "Sony WH-1000XM5 Bluetooth Headset", details.Name)
	assert.Equal(t, "30 mm driver 40 hour battery", details.Description)
	require.NotNil(t, details.RatingAvg)
	assert.InDelta(t, 4.4, *details.RatingAvg, 0.001)
	assert.Equal(t, 1664, details.ReviewCount)
	require.NotNil(t, details.PriceMinor)
	assert.Equal(t, int64(2699000), *details.PriceMinor)
	assert.Equal(t, "https://rukminim2.flixcart.com/image/xm5.jpg", details.ImageURL)
}

func TestFlipkartExtractProductDetails_MissingTitle(t *testing.T) {
	fk := NewFlipkart()
	page := rawPage(t, "https://www.flipkart.com/sony-wh-1000xm5/p/itmf2a67d9f0c8e1",
		`<html><body><div>page without a recognizable title node</div></body></html>`)

	_, err := fk.ExtractProductDetails(page)
	require.Error(t, err)
	assert.True(t, models.IsUnsupportedPage(err))
}

const flipkartReviewsHTML = `<html><body>
<div class="_27M-vq">
  <div class="_3LWZlK">5</div>
  <p class="_2-N8zT">Terrific purchase</p>
  <div class="t-ZTKy" data-full-text="Superb sound quality and the ANC is unmatched.">Superb sound quality and...READ MORE</div>
  <p class="_2sc7ZR">Rahul S</p>
  <span>Certified Buyer, Mumbai</span>
  <p class="_2sc7ZR _3j50Xe">10 months ago</p>
  <div class="_1i2dFb">45</div>
</div>
<div class="_27M-vq">
  <div class="_3LWZlK">1</div>
  <div class="t-ZTKy"></div>
</div>
<div class="_27M-vq">
  <div class="_3LWZlK">4</div>
  <div class="t-ZTKy">Good but pricey.READ MORE</div>
</div>
</body></html>`

func TestFlipkartExtractReviewBatch(t *testing.T) {
	fk := NewFlipkart()
	page := rawPage(t, "https://www.flipkart.com/sony-wh-1000xm5/product-reviews/itmf2a67d9f0c8e1?page=1", flipkartReviewsHTML)

	batch, err := fk.ExtractReviewBatch(page)
	require.NoError(t, err)
	require.Len(t, batch.Reviews, 2)

	first := batch.Reviews[0]
	assert.Equal(t, "Terrific purchase", first.Title)
	assert.Equal(t, "Superb sound quality and the ANC is unmatched.", first.Text)
	assert.Equal(t, 5.0, first.Rating)
	assert.Equal(t, "Rahul S", first.Author)
	assert.True(t, first.Verified)
	assert.Equal(t, 45, first.HelpfulCount)
	require.NotNil(t, first.PublishedAt)

	second := batch.Reviews[1]
	assert.Equal(t, "Good but pricey.", second.Text)
	assert.Equal(t, "Anonymous", second.Author)
	assert.False(t, second.Verified)

	// Two reviews is below the five-review threshold.
	assert.False(t, batch.HasMore)
}

const flipkartSearchHTML = `<html><body>
<div data-id="HPHGFD3ZYZHUGBXF">
  <div class="_4rR01T">Sony WH-1000XM5</div>
  <a class="_1fQZEK" href="/sony-wh-1000xm5/p/itmf2a67d9f0c8e1?pid=HPHGFD3ZYZHUGBXF"></a>
  <img class="_396cs4" src="https://rukminim2.flixcart.com/image/xm5-thumb.jpg"/>
  <div class="_30jeq3">₹26,990</div>
  <div class="_3LWZlK">4.4</div>
</div>
<div data-id="HPHAAABBBCCCDDD1">
  <a class="_2rpwqI" href="/boat-rockerz/p/itma11223344?pid=HPHAAABBBCCCDDD1"></a>
  <div class="IRpwTa">boAt Rockerz 450</div>
</div>
</body></html>`

func TestFlipkartExtractSearchResults(t *testing.T) {
	fk := NewFlipkart()
	page := rawPage(t, fk.SearchURL("headphones"), flipkartSearchHTML)

	set, err := fk.ExtractSearchResults(page, 10)
	require.NoError(t, err)
	require.Len(t, set.Items, 2)

	first := set.Items[0]
	assert.Equal(t, "Sony WH-1000XM5", first.Name)
	assert.Equal(t, "https://www.flipkart.com/sony-wh-1000xm5/p/itmf2a67d9f0c8e1?pid=HPHGFD3ZYZHUGBXF", first.URL)
	assert.Equal(t, "f2a67d9f0c8e1", first.SourceProductID)
	require.NotNil(t, first.PriceMinor)
	assert.Equal(t, int64(2699000), *first.PriceMinor)

	assert.Equal(t, "boAt Rockerz 450", set.Items[1].Name)
	assert.Nil(t, set.Items[1].PriceMinor)
}

func TestFlipkartSearchURL(t *testing.T) {
	assert.Equal(t, "https://www.flipkart.com/search?q=bluetooth+speaker", NewFlipkart().SearchURL("bluetooth speaker"))
}
