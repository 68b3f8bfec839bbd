package domain

import "time"

type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityFans        Visibility = "fans"
	VisibilitySubscribers Visibility = "subscribers"
	VisibilityPrivate     Visibility = "private"
	VisibilityHidden      Visibility = "hidden"
)

type MediaKind string

const (
	MediaKindNone     MediaKind = "none"
	MediaKindImage    MediaKind = "image"
	MediaKindVideo    MediaKind = "video"
	MediaKindCarousel MediaKind = "carousel"
)

type AccountType string

const (
	AccountPersonal AccountType = "personal"
	AccountCreator  AccountType = "creator"
	AccountBusiness AccountType = "business"
)

// Author est la projection du profil, lue par jointure à chaque requête (jamais stockée avec le post)
type Author struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	FullName     string      `json:"fullName"`
	AvatarURL    string      `json:"avatarUrl,omitempty"`
	IsVerified   bool        `json:"isVerified"`
	AccountType  AccountType `json:"accountType"`
	BusinessName string      `json:"businessName,omitempty"`
}

type TaggedUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Post est une ligne brute du store (post + auteur)
type Post struct {
	ID            string     `json:"id"`
	AuthorID      string     `json:"authorId"`
	Content       string     `json:"content"`
	MediaURLs     []string   `json:"mediaUrls"`
	MediaKind     MediaKind  `json:"mediaType"`
	Tags          []string   `json:"tags"`
	Visibility    Visibility `json:"visibility"`
	LikesCount    int64      `json:"likesCount"`
	CommentsCount int64      `json:"commentsCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	Author        Author     `json:"author"`
}

// Score est le classement explore : likes + commentaires
func (p *Post) Score() int64 {
	return p.LikesCount + p.CommentsCount
}

// FeedItem est un post enrichi, tel qu'il part sur le fil
type FeedItem struct {
	Post
	TaggedUsers []TaggedUser `json:"taggedUsers"`
	IsLiked     bool         `json:"isLiked"`
	IsSaved     bool         `json:"isSaved"`
}

// Page est la réponse paginée
type Page struct {
	Items      []FeedItem `json:"items"`
	NextCursor *string    `json:"nextCursor"`
	HasMore    bool       `json:"hasMore"`
}
