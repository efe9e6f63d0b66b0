package users

import (
	"time"
)

// DefaultAvatarURL is assigned to every account that has not uploaded an avatar.
const DefaultAvatarURL = "https://petdonor.ru/avatar/default-avatar-user.jpg"

// User is a platform account. Accounts created through VK social login carry
// a VKUserID and no password hash until the owner sets one.
type User struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Login        string  `gorm:"column:login;size:190;not null;uniqueIndex"`
	Email        *string `gorm:"column:email;size:320;uniqueIndex"`
	Phone        *string `gorm:"column:phone;size:32"`
	Surname      *string `gorm:"column:surname;size:190"`
	Name         *string `gorm:"column:name;size:190"`
	MiddleName   *string `gorm:"column:middle_name;size:190"`
	PasswordHash *string `gorm:"column:password_hash;size:120"`

	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	LastActiveAt time.Time `gorm:"column:last_active_at"`

	AvatarURL  string  `gorm:"column:avatar_url;size:512"`
	VKUserName *string `gorm:"column:vk_user_name;size:190"`
	TGUserName *string `gorm:"column:tg_user_name;size:190"`
	VKUserID   *string `gorm:"column:vk_user_id;size:64;uniqueIndex"`

	PasswordSet     bool `gorm:"column:password_set;not null;default:false"`
	EmailVisibility bool `gorm:"column:email_visibility;not null;default:true"`
	PhoneVisibility bool `gorm:"column:phone_visibility;not null;default:true"`
}

// TableName exposes the table backing platform accounts.
func (User) TableName() string {
	return "users"
}
