package model

// Book is a physical item that can be reserved. Titles are unique.
//
// Fields:
//
//	ID          – primary key identifier.
//	Title       – unique title.
//	Author      – author name.
//	Genre       – free-form genre label.
//	Description – optional blurb.
//	Publisher   – publishing house.
//	Pages       – page count.
//	ImageURL    – cover image location.
type Book struct {
	ID          uint64 `json:"id"`          // books.id
	Title       string `json:"title"`       // books.title
	Author      string `json:"author"`      // books.author
	Genre       string `json:"genre"`       // books.genre
	Description string `json:"description"` // books.description
	Publisher   string `json:"publisher"`   // books.publisher
	Pages       uint32 `json:"pages"`       // books.pages
	ImageURL    string `json:"image_url"`   // books.image_url
}
